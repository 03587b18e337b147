package schema

import (
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// TypeObject is the only top level type of a tool input schema.
const TypeObject = "object"

// FunctionParameters is the parameters object rendered into the model tool catalog.
// Properties and Required are never null in JSON.
type FunctionParameters struct {
	Type       string                              `json:"type"`
	Properties *orderedmap.OrderedMap[string, any] `json:"properties"`
	Required   []string                            `json:"required"`
}

// ToolSchema is the input schema declared by a tool provider.
type ToolSchema struct {
	properties *orderedmap.OrderedMap[string, any]
	typed      map[string]*jsonschema.Schema
	required   []string
	hash       uint64
}

// New creates the tool schema from the provider declaration.
// Absent properties or required lists are treated as empty.
func New(properties map[string]any, required []string) *ToolSchema {
	s := &ToolSchema{
		properties: orderedmap.New[string, any](),
		typed:      make(map[string]*jsonschema.Schema, len(properties)),
		required:   []string{},
	}

	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	// provider maps are unordered, keep the catalog stable
	sort.Strings(names)

	for _, name := range names {
		def := properties[name]
		if def == nil {
			def = map[string]any{}
		}
		s.properties.Set(name, def)
		if ps, err := FromAny(def); err == nil {
			s.typed[name] = ps
		}
	}

	for _, name := range required {
		if name != "" {
			s.required = append(s.required, name)
		}
	}

	js, _ := json.Marshal(s.Parameters())
	s.hash = xxhash.Sum64(js)
	return s
}

// Parameters returns the parameters object for the model catalog.
func (s *ToolSchema) Parameters() *FunctionParameters {
	props := orderedmap.New[string, any]()
	for pair := s.properties.Oldest(); pair != nil; pair = pair.Next() {
		props.Set(pair.Key, pair.Value)
	}
	return &FunctionParameters{
		Type:       TypeObject,
		Properties: props,
		Required:   append([]string{}, s.required...),
	}
}

// Required returns the required argument names.
func (s *ToolSchema) Required() []string {
	return append([]string{}, s.required...)
}

// Property returns the typed definition of the property.
func (s *ToolSchema) Property(name string) (*jsonschema.Schema, bool) {
	ps, ok := s.typed[name]
	return ps, ok
}

// Hash returns the hash of the rendered parameters.
func (s *ToolSchema) Hash() uint64 {
	return s.hash
}

func (s *ToolSchema) String() string {
	js, _ := json.MarshalIndent(s.Parameters(), "", "\t")
	return string(js)
}

// FromAny creates a json schema from any type.
func FromAny(t any) (*jsonschema.Schema, error) {
	js, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	schema := &jsonschema.Schema{}
	err = json.Unmarshal(js, schema)
	if err != nil {
		return nil, err
	}
	return schema, nil
}
