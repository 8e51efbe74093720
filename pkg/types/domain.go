package types

import "time"

// ModelDescriptor describes a model installed in the model server.
type ModelDescriptor struct {
	// Unique model name including tag.
	// example: llama3:latest
	Name string `json:"name" example:"llama3:latest"`
	// Size of the model blob in bytes.
	// example: 4661224676
	Size int64 `json:"size" example:"4661224676"`
	// Last modification time reported by the model server.
	Modified time.Time `json:"modified"`
	// Content digest reported by the model server.
	Digest string `json:"digest,omitempty"`
	// Optional family (e.g., llama, mistral, phi).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	// Parameter count label.
	// example: 8.0B
	ParameterSize string `json:"parameter_size,omitempty" example:"8.0B"`
	// Quantization level or variant string.
	// example: Q4_0
	Quant string `json:"quant,omitempty" example:"Q4_0"`
}

// Attachment is a user-supplied file whose text is folded into the prompt.
type Attachment struct {
	// Original file name as supplied by the client.
	// example: notes.md
	Filename string `json:"filename" example:"notes.md"`
	// Raw file bytes (base64 in JSON).
	Content []byte `json:"content" swaggertype:"string" format:"base64"`
	// Partial is set when only a prefix of the upload was kept.
	Partial bool `json:"-"`
}

// AttachmentError reports a per-file rejection. The request itself proceeds.
type AttachmentError struct {
	// example: image.png
	Filename string `json:"filename" example:"image.png"`
	// example: unsupported_attachment
	Code string `json:"code" example:"unsupported_attachment"`
	// example: binary content is not supported
	Error string `json:"error" example:"binary content is not supported"`
}

// GenerateOptions are sampling parameters passed through to the model server.
type GenerateOptions struct {
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Maximum number of tokens to generate.
	// example: 256
	NumPredict int `json:"num_predict,omitempty" example:"256"`
	// Context window size.
	// example: 4096
	NumCtx int `json:"num_ctx,omitempty" example:"4096"`
	// example: 42
	Seed int `json:"seed,omitempty" example:"42"`
	Stop []string `json:"stop,omitempty"`
}
