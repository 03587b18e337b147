// Package llms defines the model consumer contract used by the conversation engine:
// the Model interface, conversation messages, tool calls and the tool catalog
// passed to the model on every turn.
//
// Provider implementations live in subpackages.
package llms
