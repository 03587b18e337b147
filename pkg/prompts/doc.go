// Package prompts renders the prompts of the agent with text/template and sprig functions.
package prompts
