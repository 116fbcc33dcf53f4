// Package diagnostics accumulates problems found while validating user input
// and encoding contract state, so callers can report every problem at once
// before deciding to abort.
package diagnostics

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is malformed user input detected before any transaction is
// sent. It is always recoverable by correcting the input.
type ValidationError struct {
	Scope   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Scope == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Scope, e.Message)
}

type (
	Severity int

	Entry struct {
		Severity Severity
		Scope    string
		Err      error
	}

	// Diagnostics is not safe for concurrent use; each deployment owns its own.
	Diagnostics struct {
		entries []Entry
	}
)

const (
	SeverityWarning Severity = iota
	SeverityError
)

func New() *Diagnostics {
	return &Diagnostics{}
}

// Add records err under scope. A nil err is ignored.
func (d *Diagnostics) Add(scope string, err error) {
	if err == nil {
		return
	}
	d.entries = append(d.entries, Entry{Severity: SeverityError, Scope: scope, Err: err})
}

// Invalidf records a ValidationError.
func (d *Diagnostics) Invalidf(scope, format string, args ...any) {
	d.Add(scope, &ValidationError{Scope: scope, Message: fmt.Sprintf(format, args...)})
}

func (d *Diagnostics) Warnf(scope, format string, args ...any) {
	d.entries = append(d.entries, Entry{
		Severity: SeverityWarning,
		Scope:    scope,
		Err:      fmt.Errorf(format, args...),
	})
}

func (d *Diagnostics) HasErrors() bool {
	for _, e := range d.entries {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (d *Diagnostics) Errors() []error {
	var errs []error
	for _, e := range d.entries {
		if e.Severity == SeverityError {
			errs = append(errs, e.Err)
		}
	}
	return errs
}

func (d *Diagnostics) Warnings() []string {
	var warnings []string
	for _, e := range d.entries {
		if e.Severity == SeverityWarning {
			warnings = append(warnings, fmt.Sprintf("%s: %s", e.Scope, e.Err))
		}
	}
	return warnings
}

// Err joins every recorded error, or returns nil when there are none.
// The joined error keeps each entry reachable through errors.As.
func (d *Diagnostics) Err() error {
	return errors.Join(d.Errors()...)
}

// Merge appends the entries of other, prefixing their scopes with prefix.
func (d *Diagnostics) Merge(prefix string, other *Diagnostics) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		if prefix != "" {
			e.Scope = strings.TrimSuffix(prefix+"."+e.Scope, ".")
		}
		d.entries = append(d.entries, e)
	}
}
