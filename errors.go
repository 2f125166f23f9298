package codeknowl

import (
	"github.com/jensjohansen/codeknowl/internal/errkind"
	"github.com/jensjohansen/codeknowl/internal/store"
)

// ErrorKind classifies errors returned by the Engine and QueryBuilder.
type ErrorKind = errkind.Kind

const (
	NotFound          = errkind.NotFound
	InvalidInput      = errkind.InvalidInput
	ExtractionFailure = errkind.ExtractionFailure
	UpstreamFailure   = errkind.UpstreamFailure
	Conflict          = errkind.Conflict
)

// ErrNoSuccessfulRun is returned by queries against a repository that has
// never been indexed successfully. Its kind is NotFound.
var ErrNoSuccessfulRun = store.ErrNoSuccessfulRun

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return errkind.Is(err, kind)
}

// KindOf returns the kind of the first classified error in err's chain, or
// "" when none is classified.
func KindOf(err error) ErrorKind {
	return errkind.Of(err)
}
