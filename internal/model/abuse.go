package model

import "time"

// IPBlacklistEntry blocks registration from an address until Until.
type IPBlacklistEntry struct {
	IP     string    `json:"ip"`
	Reason string    `json:"reason"`
	Until  time.Time `json:"until"`
}

// ActiveAt reports whether the entry still applies at now.
func (e IPBlacklistEntry) ActiveAt(now time.Time) bool {
	return e.Until.After(now)
}

// VerificationCodeTTL is how long a sent code stays valid.
const VerificationCodeTTL = 10 * time.Minute

type VerificationCode struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiredAt reports whether the code is past its TTL at now.
func (c VerificationCode) ExpiredAt(now time.Time) bool {
	return now.Sub(c.CreatedAt) >= VerificationCodeTTL
}

type VerificationAttempt struct {
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// MentionCheck records which @-mention messages a user has dismissed.
type MentionCheck struct {
	UserID            string    `json:"user_id"`
	CheckedMessageIDs []string  `json:"checked_message_ids"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Mark adds ids not already present and stamps LastUpdated.
func (m *MentionCheck) Mark(ids []string, now time.Time) {
	seen := make(map[string]struct{}, len(m.CheckedMessageIDs))
	for _, id := range m.CheckedMessageIDs {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		m.CheckedMessageIDs = append(m.CheckedMessageIDs, id)
	}
	m.LastUpdated = now
}
