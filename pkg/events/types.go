// Package events defines fault events and the publishers that emit them.
package events

// FaultRaisedEvent is emitted when the error boundary translates a failure.
type FaultRaisedEvent struct {
	CorrelationID string `json:"correlationId"`
	FaultKind     string `json:"faultKind"`
	ErrorKind     string `json:"errorKind,omitempty"`
	Status        int    `json:"status"`
	Message       string `json:"message"`
	Operation     string `json:"operation,omitempty"`
	Policy        string `json:"policy,omitempty"`
	Format        string `json:"format,omitempty"`
	SchemaVersion string `json:"schemaVersion,omitempty"`
	Timestamp     string `json:"timestamp"`
	Env           string `json:"env,omitempty"`
}
