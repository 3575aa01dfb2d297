// Package dispatcher routes incoming COMMS and HTTP requests to registered
// operations through the interceptor chain.
package dispatcher

import "encoding/json"

// OperationRequest is the JSON envelope for incoming operation requests.
type OperationRequest struct {
	ID     string             `json:"id"`
	Type   string             `json:"type"`
	Op     string             `json:"op"`
	Params json.RawMessage    `json:"params"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
	// Accept and ContentType carry the caller's format signals.
	Accept      string `json:"accept,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	// FaultVersion is a SemVer constraint on the fault schema.
	FaultVersion string `json:"faultVersion,omitempty"`
	// Endpoint names the transport the request arrived on. Set by the server.
	Endpoint string `json:"-"`
}

// Endpoint names.
const (
	EndpointNATS = "nats"
	EndpointHTTP = "http"
)

// OperationResponse is the JSON envelope for operation responses.
type OperationResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds the serialized fault of a failed operation.
type ErrorDetail struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Status        int    `json:"status"`
	Retryable     bool   `json:"retryable"`
	// Body is the fault rendered in the negotiated format.
	Body        string `json:"body"`
	ContentType string `json:"contentType"`
	Version     string `json:"version"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	TenantID      string `json:"tenantId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Env           string `json:"env,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}
