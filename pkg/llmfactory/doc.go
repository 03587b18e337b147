// Package llmfactory creates the model consumers from configuration,
// and selects the model by provider type, by name, or by purpose.
package llmfactory
