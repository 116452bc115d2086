package db

import (
	"errors"
	"strings"

	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if code, constraint, _, _, _, ok := pkgerrors.PostgresFields(err); ok {
		if code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || constraint == constraintName
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsCheckViolation reports whether a CHECK constraint (e.g. balance >= 0) rejected a write.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, _, _, _, _, ok := pkgerrors.PostgresFields(err); ok {
		return code == pgCheckViolation
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

// IsDeadlock reports whether the store aborted the transaction to break a lock cycle.
func IsDeadlock(err error) bool {
	return hasCode(err, pgDeadlockDetected)
}

// IsSerializationFailure reports a serializable-isolation conflict.
func IsSerializationFailure(err error) bool {
	return hasCode(err, pgSerializationFailure)
}

// IsLockTimeout reports whether a row lock could not be acquired in time.
func IsLockTimeout(err error) bool {
	if hasCode(err, pgLockNotAvailable) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// IsRetryable reports whether the whole unit of work can be safely replayed.
func IsRetryable(err error) bool {
	return IsDeadlock(err) || IsSerializationFailure(err) || IsLockTimeout(err)
}

// IsNotFound reports whether err is GORM's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func hasCode(err error, want string) bool {
	if err == nil {
		return false
	}
	code, _, _, _, _, ok := pkgerrors.PostgresFields(err)
	return ok && code == want
}
