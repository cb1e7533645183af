package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrPaginationProtocol is returned when a page response is structurally invalid.
	ErrPaginationProtocol = errors.New("pagination protocol violation")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401/403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// CatalogError is a non-success response from the catalog service.
type CatalogError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is a catalog 401/403 response.
func IsAuth(err error) bool {
	var ce *CatalogError
	return errors.As(err, &ce) && ce.ErrorClass == ErrorClassAuth
}

// shouldRetry determines if an error should be retried based on its classification.
// Rate-limit responses are not retried.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status code to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 401 || status == 403:
		return ErrorClassAuth
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// errorBody is the catalog's regular error object.
type errorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// newCatalogError builds a CatalogError from a response status and body.
func newCatalogError(status int, statusText string, body []byte) *CatalogError {
	msg := statusText
	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
		msg = eb.Error.Message
	}
	return &CatalogError{
		StatusCode: status,
		ErrorClass: classifyStatus(status),
		Message:    msg,
	}
}
