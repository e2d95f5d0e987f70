// Package store persists the chat state as whole collections. The state
// registry loads every collection once at startup and overwrites a single
// collection after each mutation that touched it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Tyrowin/groupchat/internal/config"
	"github.com/Tyrowin/groupchat/internal/model"
)

var ErrUnknownCollection = errors.New("unknown collection")

type Collection string

const (
	Users                Collection = "users"
	Messages             Collection = "messages"
	Settings             Collection = "settings"
	Sessions             Collection = "sessions"
	IPBlacklist          Collection = "ip_blacklist"
	EmailBlacklist       Collection = "email_blacklist"
	VerificationAttempts Collection = "verification_attempts"
	MentionChecks        Collection = "mention_checks"
)

// Collections lists every collection in load order.
func Collections() []Collection {
	return []Collection{
		Users, Messages, Settings, Sessions,
		IPBlacklist, EmailBlacklist, VerificationAttempts, MentionChecks,
	}
}

func (c Collection) valid() bool {
	for _, known := range Collections() {
		if c == known {
			return true
		}
	}
	return false
}

// Data is the full persisted state. Settings is nil when never saved.
type Data struct {
	Users                []model.User
	Messages             []model.Message
	Settings             *model.Settings
	Sessions             []model.Session
	IPBlacklist          []model.IPBlacklistEntry
	EmailBlacklist       []string
	VerificationAttempts []model.VerificationAttempt
	MentionChecks        []model.MentionCheck
}

// Store is the durable backing for the state registry.
type Store interface {
	Load(ctx context.Context) (*Data, error)
	Save(ctx context.Context, c Collection, v any) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return NewMemory(), nil
	case config.StoreFile:
		return NewDir(cfg.DataDir)
	case config.StoreSQLite, "":
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLite(filepath.Join(cfg.DataDir, "groupchat.db"))
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
}

func encode(c Collection, v any) ([]byte, error) {
	if !c.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", c, err)
	}
	return payload, nil
}

// decode builds Data from raw JSON payloads keyed by collection. Missing
// collections stay empty.
func decode(raw map[Collection][]byte) (*Data, error) {
	data := &Data{}
	targets := map[Collection]any{
		Users:                &data.Users,
		Messages:             &data.Messages,
		Settings:             &data.Settings,
		Sessions:             &data.Sessions,
		IPBlacklist:          &data.IPBlacklist,
		EmailBlacklist:       &data.EmailBlacklist,
		VerificationAttempts: &data.VerificationAttempts,
		MentionChecks:        &data.MentionChecks,
	}
	for c, payload := range raw {
		target, ok := targets[c]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", c, err)
		}
	}
	return data, nil
}
