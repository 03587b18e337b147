// Package agent wires the provider sessions, the tool registry
// and the conversation engine into the travel booking agent.
//
// Initialize must complete before the agent answers queries,
// and Shutdown releases the provider sessions.
package agent
