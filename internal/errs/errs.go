// Package errs is the engine's error taxonomy. Transports and adapters wrap
// failures with a Kind; retry loops ask IsFatal, the queue stores UserMessage.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Kind classifies a download failure by the behavior it demands.
type Kind int

const (
	KindUnknown       Kind = iota
	KindFatalHTTP          // 400/401/403/404/405/410/451: never retry
	KindRateLimited        // 429: retry with 10*2^k seconds
	KindRetryable          // 5xx, network reset, DNS: retry up to 3 times
	KindTimeout            // chunk inactivity: retry
	KindSizeMismatch       // downloaded != Content-Length: hidden retry
	KindHTMLResponse       // HTML in place of media: fatal (expired signed URL)
	KindCancelled          // user cancellation: fatal
	KindPlaylistParse      // unparseable manifest: fatal
	KindFileReference      // stale MTProto file reference: refresh then retry
	KindFloodWait          // MTProto rate limit: sleep n+1 then retry
)

// Error is a classified download error carrying the original cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, classifying by message when the error
// was not produced by this package.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return classifyMessage(err.Error())
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindFatalHTTP, KindHTMLResponse, KindCancelled, KindPlaylistParse:
		return true
	}
	return false
}

// IsCancelled reports whether err represents a user cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// fatalStatusCodes are HTTP responses that will not improve with retries.
var fatalStatusCodes = map[int]string{
	http.StatusBadRequest:                 "the server rejected the request",
	http.StatusUnauthorized:               "authentication required",
	http.StatusForbidden:                  "access denied; the link may have expired",
	http.StatusNotFound:                   "content not found; it may have been removed",
	http.StatusMethodNotAllowed:           "the server rejected the request method",
	http.StatusGone:                       "content is gone",
	http.StatusUnavailableForLegalReasons: "content unavailable for legal reasons",
}

// ClassifyStatus maps an HTTP status code to a Kind.
func ClassifyStatus(code int) Kind {
	if _, ok := fatalStatusCodes[code]; ok {
		return KindFatalHTTP
	}
	if code == http.StatusTooManyRequests {
		return KindRateLimited
	}
	if code >= 500 {
		return KindRetryable
	}
	if code >= 200 && code < 400 {
		return KindUnknown
	}
	return KindRetryable
}

// FromStatus builds a classified error for a non-success HTTP status.
func FromStatus(code int) *Error {
	kind := ClassifyStatus(code)
	msg := fmt.Sprintf("unexpected status %d", code)
	if m, ok := fatalStatusCodes[code]; ok {
		msg = m
	} else if code == http.StatusTooManyRequests {
		msg = "too many requests"
	}
	return &Error{Kind: kind, Msg: msg}
}

func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "cancel"):
		return KindCancelled
	case strings.Contains(lower, "html"):
		return KindHTMLResponse
	case strings.Contains(lower, "flood_wait"):
		return KindFloodWait
	case strings.Contains(lower, "file_reference"):
		return KindFileReference
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return KindTimeout
	case strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "broken pipe"),
		strings.Contains(lower, "eof"),
		strings.Contains(lower, " 500"), strings.Contains(lower, " 502"),
		strings.Contains(lower, " 503"), strings.Contains(lower, " 504"):
		return KindRetryable
	}
	return KindUnknown
}

// UserMessage produces the short human phrase surfaced in the UI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		switch de.Kind {
		case KindCancelled:
			return "Cancelled"
		case KindHTMLResponse:
			return "Server returned HTML; URL may be expired"
		case KindPlaylistParse:
			return "Failed to parse manifest"
		case KindRateLimited:
			return "Too many requests"
		case KindTimeout:
			return "Download timeout"
		case KindRetryable:
			return "Connection error"
		}
		return de.Msg
	}
	if errors.Is(err, context.Canceled) || classifyMessage(err.Error()) == KindCancelled {
		return "Cancelled"
	}
	return err.Error()
}

// FloodWaitSeconds extracts n from a FLOOD_WAIT_n error string.
func FloodWaitSeconds(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	msg := err.Error()
	idx := strings.Index(msg, "FLOOD_WAIT_")
	if idx < 0 {
		return 0, false
	}
	rest := msg[idx+len("FLOOD_WAIT_"):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, convErr := strconv.Atoi(rest[:end])
	if convErr != nil {
		return 0, false
	}
	return n, true
}

// ErrCancelled is the canonical cancellation error.
var ErrCancelled = New(KindCancelled, "cancelled")
