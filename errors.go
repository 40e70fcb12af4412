package initargs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mazrean/initargs/internal/order"
)

var (
	ErrInitFailed           = errors.New("initargs: target initialization failed earlier")
	ErrAsyncNotCompleted    = errors.New("initargs: async argument read before its value was available")
	ErrCircularConstruction = errors.New("initargs: circular construction of an argument-first target")
	ErrTooManyArguments     = fmt.Errorf("initargs: more than %d arguments", MaxArguments)
	ErrDuplicateDeclaration = errors.New("initargs: initializer declared more than once")
)

// ErrResolutionCancelled is returned when an asynchronous resolution is
// cancelled. It is a control-flow signal rather than a failure; see
// IsCancellation.
var ErrResolutionCancelled = fmt.Errorf("initargs: resolution cancelled: %w", context.Canceled)

// IsCancellation reports whether err only signals a cancelled resolution.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

func cancelled(cause error) error {
	if cause == nil || errors.Is(cause, context.Canceled) {
		return ErrResolutionCancelled
	}
	return fmt.Errorf("%w: %w", ErrResolutionCancelled, cause)
}

// MissingArgumentError reports a guarded argument that resolved to nothing.
type MissingArgumentError struct {
	Initializer string
	Target      reflect.Type
	Argument    reflect.Type
	Index       int
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("%s: argument #%d (%s) of %s is missing",
		e.Initializer, e.Index, typeName(e.Argument), typeName(e.Target))
}

// IsMissingArgument reports whether err contains a MissingArgumentError.
func IsMissingArgument(err error) bool {
	var target *MissingArgumentError
	return errors.As(err, &target)
}

// InvalidInitializerShapeError reports an initializer whose arguments or
// target cannot be matched to any way of creating the target.
type InvalidInitializerShapeError struct {
	Initializer string
	Target      reflect.Type
	Reason      string
}

func (e *InvalidInitializerShapeError) Error() string {
	return fmt.Sprintf("%s: invalid initializer for %s: %s", e.Initializer, typeName(e.Target), e.Reason)
}

// UnresolvedCycleWarning names initializers whose relative order could not be
// decided. It is reported in ExecutionOrder.Warnings and never returned as an
// error.
type UnresolvedCycleWarning = order.UnresolvedCycleWarning

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func typeNames(types []reflect.Type) string {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, typeName(t))
	}
	return strings.Join(names, ", ")
}
