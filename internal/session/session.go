// Package session issues and tracks opaque session tokens. A Table is not
// safe for concurrent use; the state registry guards it with its lock.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/btcsuite/btcutil/base58"

	"github.com/Tyrowin/groupchat/internal/model"
)

// MaxPerUser is the number of concurrent sessions a user may hold.
const MaxPerUser = 5

const tokenBytes = 32

var ErrTokenGeneration = errors.New("session token generation failed")

// Table maps tokens to users and keeps each user's sessions in creation order.
type Table struct {
	byToken map[string]string
	byUser  map[string][]model.Session
	random  io.Reader
}

// NewTable returns an empty table drawing tokens from crypto/rand.
func NewTable() *Table {
	return &Table{
		byToken: make(map[string]string),
		byUser:  make(map[string][]model.Session),
		random:  rand.Reader,
	}
}

// Create issues a new token for userID. When the user already holds
// MaxPerUser sessions the oldest are revoked and returned as evicted.
func (t *Table) Create(userID string, now time.Time) (string, []string, error) {
	token, err := t.newToken()
	if err != nil {
		return "", nil, err
	}

	var evicted []string
	sessions := t.byUser[userID]
	for len(sessions) >= MaxPerUser {
		oldest := sessions[0]
		sessions = sessions[1:]
		delete(t.byToken, oldest.Token)
		evicted = append(evicted, oldest.Token)
	}

	t.byToken[token] = userID
	t.byUser[userID] = append(append([]model.Session(nil), sessions...), model.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
	})
	return token, evicted, nil
}

// Resolve returns the user owning token.
func (t *Table) Resolve(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	userID, ok := t.byToken[token]
	return userID, ok
}

// Revoke removes a single token and reports whether it existed.
func (t *Table) Revoke(token string) bool {
	userID, ok := t.byToken[token]
	if !ok {
		return false
	}
	delete(t.byToken, token)

	sessions := t.byUser[userID]
	kept := sessions[:0]
	for _, s := range sessions {
		if s.Token != token {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(t.byUser, userID)
	} else {
		t.byUser[userID] = kept
	}
	return true
}

// RevokeAll removes every session of userID and returns the revoked tokens.
func (t *Table) RevokeAll(userID string) []string {
	sessions := t.byUser[userID]
	delete(t.byUser, userID)

	tokens := make([]string, 0, len(sessions))
	for _, s := range sessions {
		delete(t.byToken, s.Token)
		tokens = append(tokens, s.Token)
	}
	return tokens
}

// Count returns the number of live sessions for userID.
func (t *Table) Count(userID string) int {
	return len(t.byUser[userID])
}

// UserSessions returns userID's sessions oldest first.
func (t *Table) UserSessions(userID string) []model.Session {
	return append([]model.Session(nil), t.byUser[userID]...)
}

// Sessions returns every session, grouped by user and oldest first within a
// user, for persistence.
func (t *Table) Sessions() []model.Session {
	users := make([]string, 0, len(t.byUser))
	for userID := range t.byUser {
		users = append(users, userID)
	}
	sort.Strings(users)

	out := make([]model.Session, 0, len(t.byToken))
	for _, userID := range users {
		out = append(out, t.byUser[userID]...)
	}
	return out
}

// Restore rebuilds the table from persisted sessions. Sessions are ordered
// by creation time per user and any excess over MaxPerUser is dropped oldest
// first so the cap holds after a reload.
func (t *Table) Restore(sessions []model.Session) {
	t.byToken = make(map[string]string, len(sessions))
	t.byUser = make(map[string][]model.Session)

	sorted := append([]model.Session(nil), sessions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	for _, s := range sorted {
		if s.Token == "" || s.UserID == "" {
			continue
		}
		if _, dup := t.byToken[s.Token]; dup {
			continue
		}
		t.byToken[s.Token] = s.UserID
		t.byUser[s.UserID] = append(t.byUser[s.UserID], s)
	}

	for userID, list := range t.byUser {
		for len(list) > MaxPerUser {
			delete(t.byToken, list[0].Token)
			list = list[1:]
		}
		t.byUser[userID] = list
	}
}

func (t *Table) newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	for {
		if _, err := io.ReadFull(t.random, buf); err != nil {
			return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
		}
		token := base58.Encode(buf)
		if _, taken := t.byToken[token]; !taken {
			return token, nil
		}
	}
}
