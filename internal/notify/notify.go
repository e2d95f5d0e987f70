// Package notify delivers transactional e-mail: verification codes and
// approval decisions.
package notify

import (
	"context"
	"sync"

	"github.com/labstack/gommon/log"
)

// Notifier sends account notifications. Only SendVerificationCode failures
// matter to callers; the notices are fire-and-forget.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendApprovalNotice(ctx context.Context, email, username string) error
	SendRejectionNotice(ctx context.Context, email string) error
}

// Log writes notifications to the log instead of sending them. It is used
// when no SMTP host is configured.
type Log struct{}

func (Log) SendVerificationCode(_ context.Context, email, code string) error {
	log.Infof("Verification code for %s: %s", email, code)
	return nil
}

func (Log) SendApprovalNotice(_ context.Context, email, username string) error {
	log.Infof("Registration of %s (%s) approved", username, email)
	return nil
}

func (Log) SendRejectionNotice(_ context.Context, email string) error {
	log.Infof("Registration of %s rejected", email)
	return nil
}

// Sent is one notification captured by a Recorder.
type Sent struct {
	Kind     string
	Email    string
	Code     string
	Username string
}

const (
	KindVerification = "verification"
	KindApproval     = "approval"
	KindRejection    = "rejection"
)

// Recorder keeps every notification in memory. Fail makes verification sends
// return the given error.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	fail error
	wake chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{wake: make(chan struct{}, 64)}
}

func (r *Recorder) SendVerificationCode(_ context.Context, email, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.record(Sent{Kind: KindVerification, Email: email, Code: code})
	return nil
}

func (r *Recorder) SendApprovalNotice(_ context.Context, email, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Sent{Kind: KindApproval, Email: email, Username: username})
	return nil
}

func (r *Recorder) SendRejectionNotice(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Sent{Kind: KindRejection, Email: email})
	return nil
}

func (r *Recorder) record(s Sent) {
	r.sent = append(r.sent, s)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Fail sets the error returned by subsequent verification sends.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// LastCode returns the most recent verification code sent to email.
func (r *Recorder) LastCode(email string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Kind == KindVerification && r.sent[i].Email == email {
			return r.sent[i].Code, true
		}
	}
	return "", false
}

// Wait blocks until a notification of kind has been recorded or ctx ends.
func (r *Recorder) Wait(ctx context.Context, kind string) (Sent, bool) {
	for {
		r.mu.Lock()
		for _, s := range r.sent {
			if s.Kind == kind {
				r.mu.Unlock()
				return s, true
			}
		}
		r.mu.Unlock()

		select {
		case <-r.wake:
		case <-ctx.Done():
			return Sent{}, false
		}
	}
}
