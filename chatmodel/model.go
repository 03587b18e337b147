package chatmodel

// QueryRequest is the request to ask the agent.
type QueryRequest struct {
	Query string `json:"query" yaml:"query" validate:"required"`
}

// QueryResponse is the final answer of the agent.
// On model failure Success is false and Error has the reason.
type QueryResponse struct {
	Success  bool   `json:"success" yaml:"success"`
	Response string `json:"response" yaml:"response"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// StatusResponse is returned by the operations without payload.
type StatusResponse struct {
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// HintsResponse lists the suggested next user messages.
type HintsResponse struct {
	Hints []string `json:"hints" yaml:"hints"`
}

// ErrorResponse is returned on failed requests.
type ErrorResponse struct {
	Detail    string `json:"detail" yaml:"detail"`
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

// StreamChunk is the fragment of the streamed answer.
type StreamChunk struct {
	Content string `json:"content" yaml:"content"`
}
