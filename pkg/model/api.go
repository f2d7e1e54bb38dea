package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Error     *Error    `json:"error"`
}

// LaunchRequest is the body of POST /api/v1/tasks.
type LaunchRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}
