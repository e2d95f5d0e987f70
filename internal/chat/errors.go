package chat

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Tyrowin/groupchat/internal/policy"
)

// Every error returned by Service wraps exactly one of these.
var (
	ErrValidation   = errors.New("invalid request")
	ErrPolicyDenied = errors.New("not allowed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// RateLimitError is a PolicyDenied outcome that carries a retry hint.
type RateLimitError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("%s: %s", ErrPolicyDenied, e.Reason)
	}
	return fmt.Sprintf("%s: %s, retry in %ds", ErrPolicyDenied, e.Reason, RetryAfterSeconds(e.RetryAfter))
}

func (e *RateLimitError) Unwrap() error {
	return ErrPolicyDenied
}

// RetryAfterSeconds rounds d up to whole seconds.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func denied(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPolicyDenied, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func unauthorized() error {
	return fmt.Errorf("%w: sign in required", ErrUnauthorized)
}

// forbidden converts a policy decision into a PolicyDenied error.
func forbidden(err error) error {
	if err == nil {
		return nil
	}
	reason := strings.TrimPrefix(err.Error(), policy.ErrForbidden.Error()+": ")
	return fmt.Errorf("%w: %s", ErrPolicyDenied, reason)
}
