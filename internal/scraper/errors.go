package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionMiss is returned when no selector for a required field matched.
	ErrExtractionMiss = errors.New("required field not found in page")

	// ErrDuplicateConflict marks a unique-constraint violation on insert. The
	// catalog recovers from it by re-reading the row and updating instead.
	ErrDuplicateConflict = errors.New("duplicate conflict")

	ErrBrowserUnavailable = errors.New("browser rendering requested but no browser is configured")
)

// FetchError covers network failures, timeouts and non-2xx responses.
// Retrying means re-invoking the whole run later.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PriceParseError is recovered locally: the price is nulled and the item continues.
type PriceParseError struct {
	Input string
	Err   error
}

func (e *PriceParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot parse price %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("cannot parse price %q", e.Input)
}

func (e *PriceParseError) Unwrap() error { return e.Err }

// ConfigurationError means operator error (unknown site, broken profile). It is
// fatal to the run that hit it.
type ConfigurationError struct {
	Site   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Site == "" {
		return "scraper configuration: " + e.Reason
	}
	return fmt.Sprintf("scraper configuration for %q: %s", e.Site, e.Reason)
}

// IsConfigurationError reports whether err (or anything it wraps) is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// StageError tags a per-item failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
