// Package common provides shared utilities used across all features
package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind tags which stage of the swap flow produced an error.
type ErrorKind uint8

const (
	KindEstimation ErrorKind = iota + 1
	KindSubmission
	KindResolution
)

func (k ErrorKind) String() string {
	switch k {
	case KindEstimation:
		return "EstimationError"
	case KindSubmission:
		return "SubmissionError"
	case KindResolution:
		return "ResolutionError"
	default:
		return "UnknownError"
	}
}

// EngineError carries the kind of a failure along with the operation that hit it.
type EngineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) && ee.Kind == kind {
		return err
	}
	return &EngineError{Kind: kind, Op: op, Err: err}
}

func EstimationError(op string, err error) error {
	return newEngineError(KindEstimation, op, err)
}

func SubmissionError(op string, err error) error {
	return newEngineError(KindSubmission, op, err)
}

func ResolutionError(op string, err error) error {
	return newEngineError(KindResolution, op, err)
}

// KindOf returns the kind of err, or 0 when err is not an EngineError.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return 0
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// HttpError represents an HTTP error with status code and message
type HttpError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s %s", e.StatusCode, e.Code, e.Message)
}

func messageOrDefault(msg string, defaultMsg string) string {
	if msg != "" {
		return msg
	}
	return defaultMsg
}

func HTTPErrorBadRequest(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    messageOrDefault(msg, "Bad request"),
	}
}

func HTTPErrorNotFound(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    messageOrDefault(msg, "Not found"),
	}
}

func HTTPErrorUnprocessable(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "UNPROCESSABLE",
		Message:    messageOrDefault(msg, "Unprocessable request"),
	}
}

func HTTPErrorBadGateway(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusBadGateway,
		Code:       "BAD_GATEWAY",
		Message:    messageOrDefault(msg, "Upstream failure"),
	}
}

func HTTPErrorInternalError(msg string) *HttpError {
	return &HttpError{
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    messageOrDefault(msg, "Internal server error"),
	}
}

// HTTPErrorFromEngine maps an engine error kind onto the HTTP envelope.
func HTTPErrorFromEngine(err error) *HttpError {
	switch KindOf(err) {
	case KindEstimation:
		return HTTPErrorUnprocessable(err.Error())
	case KindSubmission, KindResolution:
		return HTTPErrorBadGateway(err.Error())
	default:
		return HTTPErrorInternalError(err.Error())
	}
}
