package database

import (
	"errors"

	"github.com/lib/pq"
)

// UniqueConstraint represents a named unique constraint on a table.
type UniqueConstraint string

// ForeignKeyConstraint represents a named foreign key constraint on a table.
type ForeignKeyConstraint string

const (
	UniqueProcessesExecutableNameKey UniqueConstraint     = "processes_executable_name_key"
	ForeignKeyEventsProcess          ForeignKeyConstraint = "events_process_fkey"
)

// IsUniqueViolation checks if the error is due to a unique violation.
// If one or more specific unique constraints are given as arguments,
// the error must be caused by one of them. If no constraints are given,
// this function returns true for any unique violation.
func IsUniqueViolation(err error, uniqueConstraints ...UniqueConstraint) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Name() == "unique_violation" {
			if len(uniqueConstraints) == 0 {
				return true
			}
			for _, uc := range uniqueConstraints {
				if pqErr.Constraint == string(uc) {
					return true
				}
			}
		}
	}

	return false
}

// IsForeignKeyViolation checks if the error is due to a foreign key
// violation. If one or more specific foreign key constraints are given as
// arguments, the error must be caused by one of them. If no constraints are
// given, this function returns true for any foreign key violation.
func IsForeignKeyViolation(err error, foreignKeyConstraints ...ForeignKeyConstraint) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Name() == "foreign_key_violation" {
			if len(foreignKeyConstraints) == 0 {
				return true
			}
			for _, fc := range foreignKeyConstraints {
				if pqErr.Constraint == string(fc) {
					return true
				}
			}
		}
	}

	return false
}
