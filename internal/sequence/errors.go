package sequence

import (
	"errors"
	"fmt"
)

// Domain errors for the sequence package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, sequence.ErrRunNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSequenceNotFound is returned when a named sequence is not registered.
	ErrSequenceNotFound = errors.New("sequence: not found")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("sequence: run not found")

	// ErrRunFinished is returned when signalling a run that has already finished.
	ErrRunFinished = errors.New("sequence: run already finished")

	// ErrConfig is returned when a specification fails bind-time validation.
	ErrConfig = errors.New("sequence: invalid configuration")

	// ErrUnresolvedInput is returned when an input expression resolves to
	// the not-found sentinel at run time.
	ErrUnresolvedInput = errors.New("sequence: unresolved input")
)

// ConfigError reports a bind-time validation failure with the path of
// the offending node, so an operator can find it in a deep tree.
type ConfigError struct {
	Path string
	Msg  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sequence: invalid configuration at %q: %s", e.Path, e.Msg)
}

// Is lets errors.Is(err, ErrConfig) match every ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErrorf(path, format string, args ...any) error {
	return &ConfigError{Path: path, Msg: fmt.Sprintf(format, args...)}
}
