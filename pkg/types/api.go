package types

// ChatRequest is the payload accepted by POST /chat.
type ChatRequest struct {
	// Model name; must match an entry of the model catalog.
	// example: llama3:latest
	Model string `json:"model" example:"llama3:latest"`
	// Prompt text. Never truncated.
	// example: Summarize the attached notes.
	Prompt string `json:"prompt" example:"Summarize the attached notes."`
	// Optional system prompt forwarded to the model server.
	System string `json:"system,omitempty"`
	// Optional sampling parameters.
	Options *GenerateOptions `json:"options,omitempty"`
	// Files whose text is appended to the prompt, in order.
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of installed models. Empty when none are installed.
	Models []ModelDescriptor `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Machine readable error kind.
	// example: model_not_found
	Kind string `json:"kind,omitempty" example:"model_not_found"`
}

// Stream event types emitted by POST /chat.
const (
	EventMeta  = "meta"
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// StreamEvent is one NDJSON line (or SSE data payload) of a chat stream.
type StreamEvent struct {
	// One of meta, delta, done, error.
	// example: delta
	Type string `json:"type" example:"delta"`

	// meta
	RequestID        string            `json:"request_id,omitempty"`
	Model            string            `json:"model,omitempty"`
	Truncated        bool              `json:"truncated,omitempty"`
	PromptBytes      int               `json:"prompt_bytes,omitempty"`
	AttachmentErrors []AttachmentError `json:"attachment_errors,omitempty"`

	// delta
	Content string `json:"content,omitempty"`

	// done
	DoneReason string       `json:"done_reason,omitempty"`
	Stats      *StreamStats `json:"stats,omitempty"`

	// error
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// StreamStats summarizes a completed generation.
type StreamStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalDurationMS  int64 `json:"total_duration_ms"`
	EvalDurationMS   int64 `json:"eval_duration_ms"`
	Chunks           int   `json:"chunks"`
}

// AttachmentReport is returned per file by POST /attachments.
type AttachmentReport struct {
	// example: notes.md
	Filename string `json:"filename" example:"notes.md"`
	// Raw size in bytes.
	Bytes int `json:"bytes"`
	// Decoded UTF-8 text size in bytes.
	TextBytes int  `json:"text_bytes"`
	OK        bool `json:"ok"`
	// example: unsupported_attachment
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// AttachmentsResponse is returned by POST /attachments.
type AttachmentsResponse struct {
	Files []AttachmentReport `json:"files"`
}

// StartResponse is returned by POST /server/start.
type StartResponse struct {
	// example: ready
	Status string `json:"status" example:"ready"`
	// True when this gateway launched the model server.
	Owned bool `json:"owned"`
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Model-server supervision state: not_started, starting, ready, unreachable.
	// example: ready
	Upstream string `json:"upstream" example:"ready"`
	// Base URL of the model server.
	// example: http://127.0.0.1:11434
	UpstreamURL string `json:"upstream_url" example:"http://127.0.0.1:11434"`
	// True when the model server is a child of this gateway.
	Owned bool `json:"owned"`
	// Process ID of the managed model server (when owned).
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Last liveness check (unix seconds).
	LastCheckUnix int64 `json:"last_check_unix,omitempty"`
	// Last supervision error, if any.
	LastError string `json:"last_error,omitempty"`
	// Number of cached catalog entries.
	CatalogModels int `json:"catalog_models"`
	// Age of the cached catalog in seconds (-1 when never fetched).
	CatalogAgeSeconds int64 `json:"catalog_age_seconds"`
	// Streams currently relaying.
	ActiveSessions int `json:"active_sessions"`
	// Uptime of the gateway in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}
