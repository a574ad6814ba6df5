// Package runerr defines the error taxonomy surfaced by run ingestion.
//
// Every failure that aborts a load is a *Error carrying the kind, the
// offending artifact path and, where one applies, the individual identifier.
// Callers match kinds with errors.Is against the Err* sentinels or extract
// them with KindOf.
package runerr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	MissingArtifact          Kind = "MissingArtifact"
	MalformedArtifact        Kind = "MalformedArtifact"
	InvalidFitnessRecord     Kind = "InvalidFitnessRecord"
	DuplicateIndividualID    Kind = "DuplicateIndividualId"
	DanglingLineageReference Kind = "DanglingLineageReference"
	LineageCycleDetected     Kind = "LineageCycleDetected"
	CyclicGenePool           Kind = "CyclicGenePool"
	RunLoadTimeout           Kind = "RunLoadTimeout"
	InvalidChromosome        Kind = "InvalidChromosome"
	OrphanIndividual         Kind = "OrphanIndividual"
)

var (
	ErrMissingArtifact          = &Error{Kind: MissingArtifact}
	ErrMalformedArtifact        = &Error{Kind: MalformedArtifact}
	ErrInvalidFitnessRecord     = &Error{Kind: InvalidFitnessRecord}
	ErrDuplicateIndividualID    = &Error{Kind: DuplicateIndividualID}
	ErrDanglingLineageReference = &Error{Kind: DanglingLineageReference}
	ErrLineageCycleDetected     = &Error{Kind: LineageCycleDetected}
	ErrCyclicGenePool           = &Error{Kind: CyclicGenePool}
	ErrRunLoadTimeout           = &Error{Kind: RunLoadTimeout}
	ErrInvalidChromosome        = &Error{Kind: InvalidChromosome}
	ErrOrphanIndividual         = &Error{Kind: OrphanIndividual}
)

// Error is a load failure. Path names the artifact the failure was found in
// and ID the individual, when the failure concerns one.
type Error struct {
	Kind   Kind
	Path   string
	ID     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if e.ID != "" {
		b.WriteString(" (")
		b.WriteString(e.ID)
		b.WriteString(")")
	}
	detail := e.Detail
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if detail != "" {
		b.WriteString(": ")
		b.WriteString(detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind. Sentinels carry
// only a kind, so errors.Is(err, ErrMissingArtifact) matches any path.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Path != "" && t.Path != e.Path {
		return false
	}
	if t.ID != "" && t.ID != e.ID {
		return false
	}
	return true
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// PathOf returns the artifact path attached to err, if any.
func PathOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Path
}

func Missing(path string) *Error {
	return &Error{Kind: MissingArtifact, Path: path, Detail: "not found"}
}

func Malformed(path string, cause error, format string, args ...any) *Error {
	return &Error{Kind: MalformedArtifact, Path: path, Detail: fmt.Sprintf(format, args...), Err: cause}
}

func New(kind Kind, path, id, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, ID: id, Detail: fmt.Sprintf(format, args...)}
}

func Timeout(path string, cause error) *Error {
	return &Error{Kind: RunLoadTimeout, Path: path, Detail: "load did not finish before the deadline", Err: cause}
}
