package domain

import "fmt"

// ConfigError reports missing or invalid configuration, including an absent
// or unreadable token file. Fatal; the run never starts.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
	}
	return "config: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError reports a rejected token refresh or a 401/403 from an upstream
// API. Fatal for the run: nothing else will succeed with bad credentials.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError reports a non-2xx response or malformed payload from Trakt
// or Toggl. Fetch-phase upstream errors abort the run; create-phase ones are
// skipped per entry.
type UpstreamError struct {
	Service string // "trakt" or "toggl"
	Status  int    // HTTP status, 0 for transport or decode failures
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// DataError marks a watch history item the engine refuses to submit
// (malformed payload, future-dated, out-of-range duration). Always skipped
// with a warning, never fatal.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string { return "data: " + e.Reason }
