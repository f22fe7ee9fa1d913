package voiceerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures of the voice session core.
type Kind string

const (
	KindValidation Kind = "validation"
	KindMedia      Kind = "media"
	KindSignaling  Kind = "signaling"
	KindPlayback   Kind = "playback"
	KindConnection Kind = "connection"
)

// Error is a classified failure. Op names the operation that failed
// ("fetch_credential", "exchange_offer", "decode", ...).
type Error struct {
	Kind      Kind
	Op        string
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func Media(op string, err error) *Error {
	return &Error{Kind: KindMedia, Op: op, Err: err}
}

func Signaling(op string, err error) *Error {
	return &Error{Kind: KindSignaling, Op: op, Err: err}
}

// SignalingStatus builds a SignalingError for a non-success HTTP response.
func SignalingStatus(op string, status int, body string) *Error {
	body = strings.TrimSpace(body)
	var err error
	if body != "" {
		err = errors.New(body)
	}
	return &Error{
		Kind:      KindSignaling,
		Op:        op,
		Status:    status,
		Retryable: IsRetryableHTTPStatus(status),
		Err:       err,
	}
}

func Playback(op string, err error) *Error {
	return &Error{Kind: KindPlayback, Op: op, Err: err}
}

func Connection(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
