package fetch

import (
	"errors"
	"fmt"
)

var (
	errNoFallback   = errors.New("no fallback provider configured")
	errNoCandidates = errors.New("search returned no candidates")
)

// Stage names the step of a provider attempt that failed. Reasons are
// typed so the orchestrator and its callers can distinguish "track not
// there" from "provider broken" without string matching.
type Stage string

const (
	StageLookup   Stage = "lookup"
	StageIdentity Stage = "identity"
	StageStream   Stage = "stream"
	StageDownload Stage = "download"
)

// StageError records why one provider attempt failed.
type StageError struct {
	Provider string
	Stage    Stage
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Provider, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every provider in the waterfall has
// been tried without producing audio.
type ExhaustedError struct {
	Attempts []*StageError
}

func (e *ExhaustedError) Error() string {
	return "no provider could supply this track; it may not be available yet or may differ across platforms"
}
