// Package feed holds the pieces shared by every upstream source: the fetch
// error taxonomy, the fetcher contract and the per-source TTL cache.
package feed

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies why a fetch failed.
type Kind string

const (
	// KindNetwork covers timeouts, refused connections, DNS failures, open
	// circuits and unexpected non-2xx statuses.
	KindNetwork Kind = "network"
	// KindAuth covers a missing or rejected API key.
	KindAuth Kind = "auth"
	// KindRateLimited is an HTTP 429 from upstream.
	KindRateLimited Kind = "rate_limited"
	// KindParse is a payload that could not be decoded.
	KindParse Kind = "parse"
)

// Sentinel errors.
var (
	// ErrMissingAPIKey is returned by fetchers that need a key but have none.
	ErrMissingAPIKey = errors.New("api key not configured")

	// ErrNotConfigured marks a source category with no fetcher behind it.
	ErrNotConfigured = errors.New("source not configured")

	// ErrNoData is reported when a source has never produced a value.
	ErrNoData = errors.New("no data available")
)

// FetchError is the only error type a Fetcher should return.
type FetchError struct {
	Source     string
	Kind       Kind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %s error", e.Source, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NetworkError builds a network-kind FetchError.
func NetworkError(source string, err error) *FetchError {
	return &FetchError{Source: source, Kind: KindNetwork, Err: err}
}

// AuthError builds an auth-kind FetchError.
func AuthError(source string, err error) *FetchError {
	return &FetchError{Source: source, Kind: KindAuth, Err: err}
}

// ParseError builds a parse-kind FetchError.
func ParseError(source string, err error) *FetchError {
	return &FetchError{Source: source, Kind: KindParse, Err: err}
}

// RateLimitedError builds a rate_limited FetchError.
func RateLimitedError(source string, retryAfter time.Duration, err error) *FetchError {
	return &FetchError{
		Source:     source,
		Kind:       KindRateLimited,
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
		Err:        err,
	}
}

// AsFetchError returns err as a *FetchError. Errors of any other type are
// treated as network failures.
func AsFetchError(source string, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, ErrMissingAPIKey) {
		return AuthError(source, err)
	}
	return NetworkError(source, err)
}

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// StatusError maps a non-2xx response to a FetchError. It returns nil for
// 2xx statuses.
func StatusError(source string, resp *http.Response, now time.Time) *FetchError {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	err := fmt.Errorf("unexpected status: %s", http.StatusText(code))
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		fe := AuthError(source, err)
		fe.StatusCode = code
		return fe
	case http.StatusTooManyRequests:
		return RateLimitedError(source, ParseRetryAfter(resp.Header.Get("Retry-After"), now), err)
	default:
		fe := NetworkError(source, err)
		fe.StatusCode = code
		return fe
	}
}

// ParseRetryAfter reads a Retry-After header given either as delta seconds
// or as an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
