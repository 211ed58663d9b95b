// Package gcerrors defines gridcarbon's error taxonomy: a small set of typed
// errors orthogonal to transport, mirroring the kinds the original Python
// implementation raised (models/exceptions.py) but expressed as Go error
// values rather than an exception hierarchy.
//
// Each kind implements interfaces the pipeline's error router and the
// (future) REST boundary use to classify failures with errors.As rather
// than string matching:
//
//	Semantic   — should surface to the caller, maps to 422 at a REST boundary
//	Transient  — safe to retry with backoff
//	Unavailable — an upstream data source is down; skip and continue
package gcerrors

import (
	"errors"
	"fmt"
)

// Semantic marks an error the caller should see and correct, not retry.
type Semantic interface {
	Semantic() bool
}

// Transient marks an error worth retrying.
type Transient interface {
	Transient() bool
}

// Unavailable marks an upstream data source outage that source-level code
// should log and skip rather than propagate.
type Unavailable interface {
	Unavailable() bool
}

// UnknownFuelCategoryError is raised when an upstream label does not match
// any entry in the fuel category alias table.
type UnknownFuelCategoryError struct {
	Label string
}

func (e *UnknownFuelCategoryError) Error() string {
	return fmt.Sprintf("unknown fuel category: %q", e.Label)
}

func (e *UnknownFuelCategoryError) Semantic() bool { return true }

// InvalidDateRangeError is raised when a requested date range is malformed
// (end before start, or span exceeding what the caller permits).
type InvalidDateRangeError struct {
	Reason string
}

func (e *InvalidDateRangeError) Error() string {
	return "invalid date range: " + e.Reason
}

func (e *InvalidDateRangeError) Semantic() bool { return true }

// InsufficientHistoricalDataError is raised when the forecaster or a history
// query cannot proceed for lack of stored data.
type InsufficientHistoricalDataError struct {
	Reason string
}

func (e *InsufficientHistoricalDataError) Error() string {
	return "insufficient historical data: " + e.Reason
}

func (e *InsufficientHistoricalDataError) Semantic() bool { return true }

// NYISOFetchError wraps a failure to retrieve or parse NYISO fuel-mix data.
type NYISOFetchError struct {
	Err error
}

func (e *NYISOFetchError) Error() string     { return "nyiso fetch error: " + e.Err.Error() }
func (e *NYISOFetchError) Unwrap() error     { return e.Err }
func (e *NYISOFetchError) Unavailable() bool { return true }

// WeatherFetchError wraps a failure to retrieve or parse Open-Meteo data.
type WeatherFetchError struct {
	Err error
}

func (e *WeatherFetchError) Error() string     { return "weather fetch error: " + e.Err.Error() }
func (e *WeatherFetchError) Unwrap() error     { return e.Err }
func (e *WeatherFetchError) Unavailable() bool { return true }

// ValidationError is raised by a pipeline validate stage when an item fails
// a data-quality check. Always routed to dead letters; never fatal.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Reason }

// EmptyMixError is raised when CarbonIntensity is computed on a fuel mix
// with no fuels or zero total generation, for which intensity is undefined.
type EmptyMixError struct{}

func (e *EmptyMixError) Error() string { return "carbon intensity undefined: empty or zero-generation fuel mix" }

func (e *EmptyMixError) Semantic() bool { return true }

// StoreError wraps a store-layer failure. Retryable per the pipeline's
// retry policy; on final failure it is dead-lettered.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Op == "" {
		return "store error: " + e.Err.Error()
	}

	return fmt.Sprintf("store error during %s: %s", e.Op, e.Err.Error())
}

func (e *StoreError) Unwrap() error   { return e.Err }
func (e *StoreError) Transient() bool { return true }

// IsSemantic reports whether err (or something it wraps) is a Semantic error.
func IsSemantic(err error) bool {
	var s Semantic
	return errors.As(err, &s) && s.Semantic()
}

// IsTransient reports whether err (or something it wraps) is a Transient error.
func IsTransient(err error) bool {
	var t Transient
	return errors.As(err, &t) && t.Transient()
}

// IsUnavailable reports whether err (or something it wraps) is an Unavailable error.
func IsUnavailable(err error) bool {
	var u Unavailable
	return errors.As(err, &u) && u.Unavailable()
}
