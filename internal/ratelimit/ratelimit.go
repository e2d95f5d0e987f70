// Package ratelimit implements sliding-window abuse guards keyed by client
// address. A Limiter is not safe for concurrent use; the state registry calls
// it only while holding its lock.
package ratelimit

import (
	"sort"
	"time"
)

// Rule denies a key once Limit events fall inside the trailing Window.
type Rule struct {
	Window time.Duration
	Limit  int
	Reason string
}

// Decision is the outcome of a check. RetryAfter is zero when Allowed.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// RegistrationRules allows three registration attempts per address per hour.
func RegistrationRules() []Rule {
	return []Rule{
		{Window: time.Hour, Limit: 3, Reason: "too many registration attempts"},
	}
}

// VerificationRules throttles verification-code sends: one per minute, six
// per hour, twelve per day.
func VerificationRules() []Rule {
	return []Rule{
		{Window: time.Minute, Limit: 1, Reason: "verification code requested too recently"},
		{Window: time.Hour, Limit: 6, Reason: "hourly verification code limit reached"},
		{Window: 24 * time.Hour, Limit: 12, Reason: "daily verification code limit reached"},
	}
}

// Limiter evaluates rules against a per-key event log.
type Limiter struct {
	rules   []Rule
	horizon time.Duration
	events  map[string][]time.Time
	pending map[string][]time.Time
}

// New returns a Limiter enforcing rules in the given order.
func New(rules ...Rule) *Limiter {
	var horizon time.Duration
	for _, r := range rules {
		if r.Window > horizon {
			horizon = r.Window
		}
	}
	return &Limiter{
		rules:   append([]Rule(nil), rules...),
		horizon: horizon,
		events:  make(map[string][]time.Time),
		pending: make(map[string][]time.Time),
	}
}

// Check evaluates the rules for key at now without recording anything.
func (l *Limiter) Check(key string, now time.Time) Decision {
	l.pruneKey(key, now)

	history := l.history(key)
	for _, rule := range l.rules {
		inWindow := within(history, now, rule.Window)
		if len(inWindow) < rule.Limit {
			continue
		}
		// The entry that must age out to bring the count back under the limit.
		gate := inWindow[len(inWindow)-rule.Limit]
		retry := gate.Add(rule.Window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Reason: rule.Reason, RetryAfter: retry}
	}
	return Decision{Allowed: true}
}

// Record appends an event for key at now.
func (l *Limiter) Record(key string, now time.Time) {
	l.events[key] = insertSorted(l.events[key], now)
}

// CheckAndRecord checks key and records the event only when allowed.
func (l *Limiter) CheckAndRecord(key string, now time.Time) Decision {
	d := l.Check(key, now)
	if d.Allowed {
		l.Record(key, now)
	}
	return d
}

// Reservation holds quota for an in-flight event until it is committed or
// cancelled.
type Reservation struct {
	limiter *Limiter
	key     string
	at      time.Time
	done    bool
}

// Reserve checks key and, when allowed, holds a pending slot that counts
// against every window until Commit or Cancel.
func (l *Limiter) Reserve(key string, now time.Time) (*Reservation, Decision) {
	d := l.Check(key, now)
	if !d.Allowed {
		return nil, d
	}
	l.pending[key] = insertSorted(l.pending[key], now)
	return &Reservation{limiter: l, key: key, at: now}, d
}

// Commit turns the pending slot into a recorded event.
func (r *Reservation) Commit() {
	if r == nil || r.done {
		return
	}
	r.done = true
	r.limiter.release(r.key, r.at)
	r.limiter.Record(r.key, r.at)
}

// Cancel releases the pending slot without recording anything.
func (r *Reservation) Cancel() {
	if r == nil || r.done {
		return
	}
	r.done = true
	r.limiter.release(r.key, r.at)
}

func (l *Limiter) release(key string, at time.Time) {
	slots := l.pending[key]
	for i, t := range slots {
		if t.Equal(at) {
			slots = append(slots[:i], slots[i+1:]...)
			break
		}
	}
	if len(slots) == 0 {
		delete(l.pending, key)
		return
	}
	l.pending[key] = slots
}

// Prune drops every recorded event older than the horizon and reports
// whether anything was removed.
func (l *Limiter) Prune(now time.Time) bool {
	changed := false
	for key := range l.events {
		if l.pruneKey(key, now) {
			changed = true
		}
	}
	return changed
}

func (l *Limiter) pruneKey(key string, now time.Time) bool {
	events, ok := l.events[key]
	if !ok {
		return false
	}
	cut := 0
	for cut < len(events) && now.Sub(events[cut]) >= l.horizon {
		cut++
	}
	if cut == 0 {
		return false
	}
	if cut == len(events) {
		delete(l.events, key)
		return true
	}
	l.events[key] = append([]time.Time(nil), events[cut:]...)
	return true
}

// Snapshot returns a copy of the recorded events for persistence. Pending
// reservations are not included.
func (l *Limiter) Snapshot() map[string][]time.Time {
	out := make(map[string][]time.Time, len(l.events))
	for key, events := range l.events {
		out[key] = append([]time.Time(nil), events...)
	}
	return out
}

// Restore replaces the recorded events, typically from a durable snapshot.
func (l *Limiter) Restore(events map[string][]time.Time) {
	l.events = make(map[string][]time.Time, len(events))
	for key, ts := range events {
		if len(ts) == 0 {
			continue
		}
		sorted := append([]time.Time(nil), ts...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		l.events[key] = sorted
	}
}

func (l *Limiter) history(key string) []time.Time {
	events, pending := l.events[key], l.pending[key]
	if len(pending) == 0 {
		return events
	}
	merged := append([]time.Time(nil), events...)
	for _, t := range pending {
		merged = insertSorted(merged, t)
	}
	return merged
}

// within returns the suffix of sorted events newer than window at now.
func within(events []time.Time, now time.Time, window time.Duration) []time.Time {
	i := sort.Search(len(events), func(i int) bool {
		return now.Sub(events[i]) < window
	})
	return events[i:]
}

func insertSorted(events []time.Time, t time.Time) []time.Time {
	i := sort.Search(len(events), func(i int) bool { return events[i].After(t) })
	events = append(events, time.Time{})
	copy(events[i+1:], events[i:])
	events[i] = t
	return events
}
