package db

import "time"

// FaultRecord is a row of the fault_log table.
type FaultRecord struct {
	CorrelationID string    `json:"correlationId"`
	FaultKind     string    `json:"faultKind"`
	ErrorKind     string    `json:"errorKind"`
	Status        int       `json:"status"`
	Message       string    `json:"message"`
	Operation     string    `json:"operation"`
	Dump          string    `json:"dump"`
	Created       time.Time `json:"created"`
}
