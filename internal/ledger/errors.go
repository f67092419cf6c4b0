package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Typed errors returned by the ledger. Callers branch on these with
// errors.Is; storage-engine error shapes never leak past this package.
var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// mapError converts driver errors into the ledger taxonomy. Duplicate-key
// detection matches both the postgres and sqlite message shapes, since
// tests run against an in-memory sqlite ledger.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	msg := err.Error()
	if strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
