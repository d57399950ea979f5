package store

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ValentinKolb/dRate/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.HashDB

// IStore is the interface for a per-shard field store: every key holds a set of named
// string fields (a hash). Write operations return only an error (nil on success),
// read operations return the requested data along with an error (nil on success).
type IStore interface {
	// HSet creates the key if needed and sets the given fields. Fields that are not
	// mentioned keep their value.
	HSet(key string, fields map[string]string) (err error)
	// HGetAll returns all fields of a key. The boolean return value indicates whether the key exists.
	HGetAll(key string) (fields map[string]string, loaded bool, err error)
	// Delete removes the key with all its fields and reports whether it existed.
	Delete(key string) (deleted bool, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type used across dRate. It wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("dRate error (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// CodeOf returns the RetCode carried by err. Errors that are not (and do not wrap) an
// *Error are internal errors, nil is a success.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCBadRequest                          // 4: Malformed rating or clock payload.
	RetCNotAcceptable                       // 5: Client does not accept JSON.
	RetCUnsupportedMediaType                // 6: Request body is not JSON.
	RetCNotFound                            // 7: Entity has no stored aggregate.
	RetCUnavailable                         // 8: Downstream shard unreachable or timed out.
	RetCInvariantViolation                  // 9: Stored aggregate is corrupted.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCBadRequest:
		return "BadRequest"
	case RetCNotAcceptable:
		return "NotAcceptable"
	case RetCUnsupportedMediaType:
		return "UnsupportedMediaType"
	case RetCNotFound:
		return "NotFound"
	case RetCUnavailable:
		return "ServiceUnavailable"
	case RetCInvariantViolation:
		return "InvariantViolation"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}

// HTTPStatus maps the code to the status returned by the HTTP API
func (c RetCode) HTTPStatus() int {
	switch c {
	case RetCSuccess:
		return http.StatusOK
	case RetCBadRequest, RetCInvalidOperation:
		return http.StatusBadRequest
	case RetCNotAcceptable:
		return http.StatusNotAcceptable
	case RetCUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case RetCNotFound:
		return http.StatusNotFound
	case RetCUnavailable:
		return http.StatusServiceUnavailable
	case RetCUnsupportedOperation:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// RetCodeFromHTTPStatus is the inverse of HTTPStatus, used by HTTP clients
func RetCodeFromHTTPStatus(status int) RetCode {
	switch {
	case status >= 200 && status < 300:
		return RetCSuccess
	case status == http.StatusBadRequest:
		return RetCBadRequest
	case status == http.StatusNotAcceptable:
		return RetCNotAcceptable
	case status == http.StatusUnsupportedMediaType:
		return RetCUnsupportedMediaType
	case status == http.StatusNotFound:
		return RetCNotFound
	case status == http.StatusNotImplemented:
		return RetCUnsupportedOperation
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		return RetCUnavailable
	default:
		return RetCInternalError
	}
}
