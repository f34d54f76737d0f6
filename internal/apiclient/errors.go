package apiclient

import (
	"errors"
	"fmt"
)

// ConnectivityMessage is what the UI shows for any ConnectivityError.
const ConnectivityMessage = "Cannot connect to backend. Is the scanner service running?"

// ConnectivityError means the backend could not be reached or answered with
// something that is not the expected JSON.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// APIError is a structured error returned by the backend.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

// IsConnectivity reports whether err wraps a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// UserMessage maps err to the text shown to the visitor.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return ConnectivityMessage
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
