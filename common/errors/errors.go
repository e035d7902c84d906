package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ValidationError rejects malformed input. No state is changed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidation creates a ValidationError.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports an unknown entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFound creates a NotFoundError.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidTransitionError rejects a status change that the lifecycle does not allow.
type InvalidTransitionError struct {
	OrderID string
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// StorageError wraps a persistence failure. The operation was rolled back and may be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorage wraps err as a StorageError unless it already belongs to the taxonomy.
func NewStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTaxonomy(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ProviderError is an ETA or geocoding failure. It never leaves the providers package
// except as the reason of a failed estimate.
type ProviderError struct {
	Provider string
	Reason   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

// DeliveryError is a fan-out publish failure.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsTaxonomy reports whether err already carries a domain error type.
func IsTaxonomy(err error) bool {
	var (
		ve *ValidationError
		nf *NotFoundError
		it *InvalidTransitionError
		se *StorageError
	)
	return stderrors.As(err, &ve) || stderrors.As(err, &nf) || stderrors.As(err, &it) || stderrors.As(err, &se)
}

// HTTPStatus maps an error to the status code the REST surface answers with.
func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		it *InvalidTransitionError
		se *StorageError
		pe *ProviderError
	)
	switch {
	case stderrors.As(err, &ve):
		return http.StatusBadRequest
	case stderrors.As(err, &nf):
		return http.StatusNotFound
	case stderrors.As(err, &it):
		return http.StatusConflict
	case stderrors.As(err, &se):
		return http.StatusServiceUnavailable
	case stderrors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body.
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)
	body := gin.H{"error": err.Error()}

	var it *InvalidTransitionError
	if stderrors.As(err, &it) {
		body["current_status"] = it.From
		body["requested_status"] = it.To
	}
	var se *StorageError
	if stderrors.As(err, &se) {
		body["error"] = "Temporary storage failure, please retry"
		body["retryable"] = true
	}
	if status == http.StatusInternalServerError {
		body["error"] = "Internal server error"
	}
	c.JSON(status, body)
}
