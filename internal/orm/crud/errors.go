package crud

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/conduit-lang/docrud/internal/orm/document"
	"github.com/conduit-lang/docrud/internal/orm/query"
	"github.com/conduit-lang/docrud/internal/orm/schema"
	"github.com/conduit-lang/docrud/internal/orm/store"
	"github.com/conduit-lang/docrud/internal/orm/validation"
)

// Error is a failure carrying a stable machine-readable code. Transports map
// the code to their own status; gRPC servers pick it up through GRPCStatus.
type Error struct {
	Code    codes.Code
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// GRPCStatus returns the gRPC status of the error
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// Common CRUD error types
var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = &Error{Code: codes.NotFound, Message: "Not found"}

	// ErrInvalidEnvelope is returned when a request does not carry "id" and
	// exactly the payload key of the called operation
	ErrInvalidEnvelope = &Error{Code: codes.InvalidArgument, Message: "invalid request envelope"}

	// ErrInvalidID is returned when a record identifier cannot be parsed
	ErrInvalidID = &Error{Code: codes.InvalidArgument, Message: "invalid id"}

	// ErrNotConnected is returned by NewService when the store cannot be reached
	ErrNotConnected = &Error{Code: codes.Unavailable, Message: "store is not connected"}

	// ErrUnknownOperation is returned when a service has no operation with the requested name
	ErrUnknownOperation = &Error{Code: codes.Unimplemented, Message: "unknown operation"}

	// ErrOperationCollision is returned by NewService when two fields
	// synthesize the same operation name
	ErrOperationCollision = errors.New("operation name collision")

	// ErrEmbeddedRecordType is returned by NewService for record types that
	// are only stored inside other records
	ErrEmbeddedRecordType = errors.New("embedded record types cannot be served")
)

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidEnvelope returns true if the error is ErrInvalidEnvelope
func IsInvalidEnvelope(err error) bool {
	return errors.Is(err, ErrInvalidEnvelope)
}

// CodeOf returns the stable code of any error returned by this package
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}

	var crudErr *Error
	if errors.As(err, &crudErr) {
		return crudErr.Code
	}

	switch {
	case errors.Is(err, store.ErrNoDocument):
		return codes.NotFound
	case errors.Is(err, store.ErrDuplicateID):
		return codes.AlreadyExists
	case errors.Is(err, store.ErrNotConnected):
		return codes.Unavailable
	case errors.Is(err, query.ErrMalformedFilterValue),
		errors.Is(err, query.ErrMalformedSort),
		errors.Is(err, query.ErrMalformedPagination),
		errors.Is(err, store.ErrUnsupportedOperator),
		errors.Is(err, validation.ErrValidationFailed),
		errors.Is(err, document.ErrInvalidID):
		return codes.InvalidArgument
	case errors.Is(err, schema.ErrUnknownRecordType):
		return codes.NotFound
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}

	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Unknown
}
