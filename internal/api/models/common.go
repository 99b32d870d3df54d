// Package models defines request and response types for the labnet REST API.
// Module calls and the /_ endpoints answer with dispatch.Envelope; the types
// here are the outputs carried inside it and the bare system responses.
package models

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response.
type StatusResponse struct {
	Status string `json:"status"`
}
