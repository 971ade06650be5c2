package types

// Message is a single chat message in OpenAI format.
type Message struct {
	// Role of the author: system, user, assistant or tool.
	// example: user
	Role string `json:"role" example:"user"`
	// Content of the message.
	// example: Write a haiku about the ocean.
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// ChatCompletionRequest mirrors the OpenAI /v1/chat/completions body.
// The proxy only inspects Model and Stream; everything else is forwarded
// to the backend untouched.
type ChatCompletionRequest struct {
	// Model name to route the request to. Required.
	// example: llama-3.1-8b
	Model string `json:"model" example:"llama-3.1-8b"`
	// Conversation history.
	Messages []Message `json:"messages,omitempty"`
	// If true, the response is relayed as server-sent events.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
}

// CompletionRequest mirrors the OpenAI legacy /v1/completions body.
type CompletionRequest struct {
	// Model name to route the request to. Required.
	// example: llama-3.1-8b
	Model string `json:"model" example:"llama-3.1-8b"`
	// Prompt text to complete.
	// example: Once upon a time
	Prompt string `json:"prompt,omitempty" example:"Once upon a time"`
	// If true, the response is relayed as server-sent events.
	Stream bool `json:"stream,omitempty"`
}

// ModelObject is one entry of the OpenAI model listing.
type ModelObject struct {
	// Model name.
	// example: llama-3.1-8b
	ID string `json:"id" example:"llama-3.1-8b"`
	// Always "model".
	Object string `json:"object" example:"model"`
	// Registry load time in unix seconds.
	Created int64 `json:"created" example:"1700000000"`
	// Owning organization; always "inferd".
	OwnedBy string `json:"owned_by" example:"inferd"`
}

// ModelList is the OpenAI list envelope returned by GET /v1/models.
type ModelList struct {
	Object string        `json:"object" example:"list"`
	Data   []ModelObject `json:"data"`
}

// ErrorResponse is the OpenAI-compatible error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error body of an ErrorResponse.
type ErrorDetail struct {
	// Human-readable message.
	// example: no GPU can host model llama-3.1-8b
	Message string `json:"message" example:"no GPU can host model llama-3.1-8b"`
	// Error category, see ErrorType* constants.
	// example: service_unavailable
	Type string `json:"type" example:"service_unavailable"`
	// Offending parameter, when applicable.
	Param string `json:"param,omitempty"`
	// Machine-readable code.
	// example: placement_failed
	Code string `json:"code,omitempty" example:"placement_failed"`
}

// Error type constants matching the OpenAI API.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeServerError        = "server_error"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeStreamInterrupted  = "stream_interrupted"
)
