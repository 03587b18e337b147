// Package conversation implements the conversation engine.
//
// The Engine keeps the history of one conversation and answers user queries
// in a bounded loop: the model either returns a final answer,
// or asks for tool calls that are dispatched through the Router
// and fed back to the model.
//
// A turn is committed to the history at once, or not at all.
package conversation
