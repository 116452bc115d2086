// Package scope runs a unit of work in exactly one store transaction and
// converts every failure into a result envelope instead of an error return.
package scope

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/quotaclub/settlement/pkg/db"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"gorm.io/gorm"
)

// Runner opens the underlying store transaction. *db.Client satisfies it.
type Runner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Work is the body executed inside the scope.
type Work[T any] func(ctx context.Context, tx *gorm.DB) (T, error)

// Result is the envelope every boundary operation returns.
type Result[T any] struct {
	Success bool             `json:"success"`
	Data    T                `json:"data,omitempty"`
	Err     *pkgerrors.Error `json:"error,omitempty"`

	cause error
}

// Cause returns the unfiltered failure for logging. It must not be surfaced to callers.
func (r Result[T]) Cause() error {
	return r.cause
}

type activeKey struct{}

// Active reports whether ctx already belongs to an open scope.
func Active(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	active, _ := ctx.Value(activeKey{}).(bool)
	return active
}

// Run opens one transaction, runs work inside it, commits on success and rolls
// back on any error or panic. Nested scopes are rejected before touching the store.
func Run[T any](ctx context.Context, runner Runner, work Work[T]) Result[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if Active(ctx) {
		return Failed[T](pkgerrors.New(pkgerrors.CodeInternal, "nested transaction scope"))
	}
	if runner == nil {
		return Failed[T](pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required"))
	}

	scoped := context.WithValue(ctx, activeKey{}, true)
	var out T
	err := runGuarded(scoped, runner, func(tx *gorm.DB) error {
		value, err := work(scoped, tx)
		if err != nil {
			return err
		}
		out = value
		return nil
	})
	if err != nil {
		var zero T
		res := Failed[T](Classify(err))
		res.Data = zero
		res.cause = err
		return res
	}
	return Result[T]{Success: true, Data: out}
}

// Failed builds a failure envelope from a typed error.
func Failed[T any](err *pkgerrors.Error) Result[T] {
	return Result[T]{Success: false, Err: pkgerrors.Public(err), cause: err}
}

func runGuarded(ctx context.Context, runner Runner, fn func(tx *gorm.DB) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in transaction scope: %v", r)
		}
	}()
	return runner.WithTx(ctx, fn)
}

// Classify maps any failure onto the ledger's error taxonomy.
func Classify(err error) *pkgerrors.Error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case db.IsRetryable(err):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store contention, retry the operation")
	case stdErrors.Is(err, context.Canceled), stdErrors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "operation interrupted")
	case db.IsNotFound(err):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "record not found")
	case db.IsCheckViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "constraint rejected the change")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transaction failed")
	}
}
