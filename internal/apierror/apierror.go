// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
// Code is a stable machine-readable kind for errors a client is expected to
// handle (e.g. "stock_insuficiente"); Data carries its details.
type APIError struct {
	Detail string      `json:"detail"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// WithCode builds an error a client can branch on.
func WithCode(code, msg string, data interface{}) *APIError {
	return &APIError{Detail: msg, Code: code, Data: data}
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "Error de validacion", Code: "validacion", Fields: fields}
}
