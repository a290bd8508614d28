package main

import "fmt"

// CaptureError means the spot's image source could not produce a snapshot.
// It is terminal for the check that hit it; the next tick is the retry.
type CaptureError struct {
	Source string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Source, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

type AnalysisErrorKind string

const (
	AnalysisTimeout       AnalysisErrorKind = "timeout"
	AnalysisQuotaExceeded AnalysisErrorKind = "quota_exceeded"
	AnalysisHTTPError     AnalysisErrorKind = "http_error"
	AnalysisNetworkError  AnalysisErrorKind = "network_error"
	AnalysisParseError    AnalysisErrorKind = "parse_error"
)

// AnalysisError is the single failure type the analysis adapter reports.
// Kind distinguishes the user-visible message only; control flow treats
// every kind the same way (downgrade to not-sorted, surface, stop).
type AnalysisError struct {
	Kind   AnalysisErrorKind
	Status int
	Msg    string
}

func (e *AnalysisError) Error() string {
	switch e.Kind {
	case AnalysisQuotaExceeded:
		return "analysis quota exceeded, try again later"
	case AnalysisHTTPError:
		return fmt.Sprintf("analysis HTTP %d: %s", e.Status, e.Msg)
	case AnalysisTimeout:
		return "analysis timed out: " + e.Msg
	case AnalysisNetworkError:
		return "analysis network error: " + e.Msg
	default:
		return "analysis response unusable: " + e.Msg
	}
}

// PersistenceError wraps document store failures. Load failures are absorbed
// as cold start; save failures are logged and never crash a check.
type PersistenceError struct {
	Namespace string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Namespace, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
