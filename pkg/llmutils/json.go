package llmutils

import (
	"bytes"
	"encoding/json"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

var fence = []byte("```")

// CleanJSON cuts the text before the first opening brace or bracket,
// and after the last closing one, so replies like
// `Here you go: [...]. Enjoy!` decode.
// Text without JSON delimiters is returned as is.
func CleanJSON(bs []byte) []byte {
	if start := bytes.IndexAny(bs, "{["); start > 0 {
		bs = bs[start:]
	}
	end := max(bytes.LastIndexByte(bs, '}'), bytes.LastIndexByte(bs, ']'))
	if end >= 0 {
		bs = bs[:end+1]
	}
	return bs
}

// BytesTrimBackticks returns the content of the first markdown fence,
// without the language tag. Text without a fence is returned as is.
func BytesTrimBackticks(bs []byte) []byte {
	_, body, found := bytes.Cut(bs, fence)
	if !found {
		return bs
	}
	// the language tag runs up to the end of line, unless JSON starts first
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 && bytes.IndexAny(body[:nl], "{[") < 0 {
		body = body[nl+1:]
	}
	if end := bytes.LastIndex(body, fence); end >= 0 {
		body = body[:end]
	}
	return bytes.TrimSpace(body)
}

// TrimBackticks is the string form of BytesTrimBackticks.
func TrimBackticks(text string) string {
	return string(BytesTrimBackticks([]byte(text)))
}

// Unmarshal decodes JSON produced by a model.
// Prefixes, postfixes and markdown fences around the JSON are ignored,
// and the decoder tolerates the usual model formatting mistakes.
func Unmarshal(bs []byte, ret any) error {
	data := CleanJSON(BytesTrimBackticks(bytes.TrimSpace(bs)))
	if len(data) == 0 {
		return errors.New("empty JSON")
	}
	return ljson.Unmarshal(data, ret)
}

// ParseArguments decodes tool call arguments into a key/value map.
// Empty arguments decode to an empty map.
func ParseArguments(args string) (map[string]any, error) {
	res := map[string]any{}
	trimmed := bytes.TrimSpace([]byte(args))
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return res, nil
	}
	if err := Unmarshal(trimmed, &res); err != nil {
		return nil, errors.Wrap(err, "invalid tool arguments")
	}
	if res == nil {
		res = map[string]any{}
	}
	return res, nil
}

// ToJSONIndent returns the tab indented JSON of val, or empty string.
func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

// ToYAML returns the YAML of val, or empty string.
func ToYAML(val any) string {
	y, _ := yaml.Marshal(val)
	return string(y)
}
