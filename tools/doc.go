// Package tools defines the tool contract of the agent,
// the tool invocation requested by the model and its outcome.
package tools
