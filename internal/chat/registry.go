package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/Tyrowin/groupchat/internal/clock"
	"github.com/Tyrowin/groupchat/internal/model"
	"github.com/Tyrowin/groupchat/internal/ratelimit"
	"github.com/Tyrowin/groupchat/internal/session"
	"github.com/Tyrowin/groupchat/internal/store"
)

// State is the in-memory snapshot of every domain record. It is only
// reachable through Registry.Read and Registry.Update.
type State struct {
	users      map[string]*model.User
	byEmail    map[string]string
	byUsername map[string]string

	messages []model.Message
	settings model.Settings
	sessions *session.Table

	codes          map[string]model.VerificationCode
	ipBlacklist    []model.IPBlacklistEntry
	emailBlacklist []string
	registrations  *ratelimit.Limiter
	verifications  *ratelimit.Limiter
	mentions       map[string]*model.MentionCheck
}

func newState() *State {
	return &State{
		users:         make(map[string]*model.User),
		byEmail:       make(map[string]string),
		byUsername:    make(map[string]string),
		settings:      model.DefaultSettings(),
		sessions:      session.NewTable(),
		codes:         make(map[string]model.VerificationCode),
		registrations: ratelimit.New(ratelimit.RegistrationRules()...),
		verifications: ratelimit.New(ratelimit.VerificationRules()...),
		mentions:      make(map[string]*model.MentionCheck),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *State) User(id string) (*model.User, bool) {
	u, ok := s.users[id]
	return u, ok
}

func (s *State) UserByEmail(email string) (*model.User, bool) {
	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, false
	}
	return s.User(id)
}

func (s *State) UserByUsername(username string) (*model.User, bool) {
	id, ok := s.byUsername[username]
	if !ok {
		return nil, false
	}
	return s.User(id)
}

// UserCount is the number of users in any status.
func (s *State) UserCount() int {
	return len(s.users)
}

// Users returns users matching keep in registration order.
func (s *State) Users(keep func(*model.User) bool) []*model.User {
	out := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		if keep == nil || keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// putUser inserts or replaces u together with both secondary indices.
func (s *State) putUser(u *model.User) {
	if old, ok := s.users[u.ID]; ok {
		delete(s.byEmail, emailKey(old.Email))
		delete(s.byUsername, old.Username)
	}
	s.users[u.ID] = u
	s.byEmail[emailKey(u.Email)] = u.ID
	s.byUsername[u.Username] = u.ID
}

// removeUser deletes the user, its indices, sessions and mention checks and
// returns the revoked tokens.
func (s *State) removeUser(id string) (*model.User, []string) {
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	delete(s.users, id)
	delete(s.byEmail, emailKey(u.Email))
	delete(s.byUsername, u.Username)
	delete(s.mentions, id)
	return u, s.sessions.RevokeAll(id)
}

func (s *State) Messages() []model.Message {
	return s.messages
}

func (s *State) message(id string) (int, bool) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *State) Settings() model.Settings {
	return s.settings
}

func (s *State) Sessions() *session.Table {
	return s.sessions
}

// ResolveSession returns the user owning token.
func (s *State) ResolveSession(token string) (*model.User, bool) {
	userID, ok := s.sessions.Resolve(token)
	if !ok {
		return nil, false
	}
	return s.User(userID)
}

// IPBlock returns the active blacklist entry for ip.
func (s *State) IPBlock(ip string, now time.Time) (model.IPBlacklistEntry, bool) {
	for _, e := range s.ipBlacklist {
		if e.IP == ip && e.ActiveAt(now) {
			return e, true
		}
	}
	return model.IPBlacklistEntry{}, false
}

func (s *State) EmailBlacklisted(email string) bool {
	key := emailKey(email)
	for _, e := range s.emailBlacklist {
		if emailKey(e) == key {
			return true
		}
	}
	return false
}

func (s *State) blacklistEmail(email string) bool {
	if s.EmailBlacklisted(email) {
		return false
	}
	s.emailBlacklist = append(s.emailBlacklist, email)
	return true
}

func (s *State) VerificationCode(email string) (model.VerificationCode, bool) {
	c, ok := s.codes[emailKey(email)]
	return c, ok
}

func (s *State) MentionCheck(userID string) (*model.MentionCheck, bool) {
	m, ok := s.mentions[userID]
	return m, ok
}

// Tx is the mutable view handed to Registry.Update.
type Tx struct {
	*State
	now   time.Time
	dirty map[store.Collection]bool
}

// Now is the time the transaction started.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// Touch marks collections to be saved before the lock is released.
func (tx *Tx) Touch(cs ...store.Collection) {
	for _, c := range cs {
		tx.dirty[c] = true
	}
}

// Registry serializes every access to State behind one mutex and writes
// touched collections through to the store before releasing it.
type Registry struct {
	mu    sync.Mutex
	state *State
	store store.Store
	clock clock.Clock
}

func NewRegistry(st store.Store, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{state: newState(), store: st, clock: clk}
}

func (r *Registry) Clock() clock.Clock {
	return r.clock
}

// Load replaces the in-memory state with the store's contents.
func (r *Registry) Load(ctx context.Context) error {
	data, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	st := newState()
	for i := range data.Users {
		u := data.Users[i]
		if u.ID == "" || !u.Role.Valid() {
			log.Warnf("Skipping malformed user record %q", u.ID)
			continue
		}
		st.putUser(&u)
	}

	st.messages = data.Messages
	if data.Settings != nil {
		st.settings = *data.Settings
	}

	sessions := make([]model.Session, 0, len(data.Sessions))
	for _, s := range data.Sessions {
		if _, ok := st.users[s.UserID]; ok {
			sessions = append(sessions, s)
		}
	}
	st.sessions.Restore(sessions)

	st.ipBlacklist = data.IPBlacklist
	st.emailBlacklist = data.EmailBlacklist

	attempts := make(map[string][]time.Time)
	for _, a := range data.VerificationAttempts {
		attempts[a.IP] = append(attempts[a.IP], a.Timestamp)
	}
	st.verifications.Restore(attempts)

	for i := range data.MentionChecks {
		m := data.MentionChecks[i]
		st.mentions[m.UserID] = &m
	}

	r.mu.Lock()
	r.state = st
	r.mu.Unlock()

	log.Infof("Loaded %d users, %d messages, %d sessions", len(st.users), len(st.messages), len(sessions))
	return nil
}

// Read runs fn with shared state under the lock. fn must not retain pointers
// into the state after it returns.
func (r *Registry) Read(fn func(*State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.state)
}

// Update runs fn under the lock after expiring stale abuse records. Touched
// collections are saved even when fn fails so that rate-limit bookkeeping
// survives a rejected request.
func (r *Registry) Update(ctx context.Context, fn func(*Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &Tx{State: r.state, now: r.clock.Now(), dirty: make(map[store.Collection]bool)}
	r.expire(tx)

	err := fn(tx)

	// The mutation is already visible in memory, so its save must not be
	// abandoned when the caller goes away.
	saveCtx := context.WithoutCancel(ctx)
	for _, c := range store.Collections() {
		if tx.dirty[c] {
			r.save(saveCtx, c)
		}
	}
	return err
}

func (r *Registry) expire(tx *Tx) {
	now := tx.now

	kept := tx.ipBlacklist[:0]
	for _, e := range tx.ipBlacklist {
		if e.ActiveAt(now) {
			kept = append(kept, e)
		}
	}
	if len(kept) != len(tx.ipBlacklist) {
		for i := len(kept); i < len(tx.ipBlacklist); i++ {
			tx.ipBlacklist[i] = model.IPBlacklistEntry{}
		}
		tx.ipBlacklist = kept
		tx.Touch(store.IPBlacklist)
	}

	for key, code := range tx.codes {
		if code.ExpiredAt(now) {
			delete(tx.codes, key)
		}
	}

	tx.registrations.Prune(now)
	if tx.verifications.Prune(now) {
		tx.Touch(store.VerificationAttempts)
	}
}

func (r *Registry) save(ctx context.Context, c store.Collection) {
	if err := r.store.Save(ctx, c, r.snapshot(c)); err != nil {
		log.Warnf("Persisting %s failed, keeping in-memory state: %v", c, err)
	}
}

func (r *Registry) snapshot(c store.Collection) any {
	st := r.state
	switch c {
	case store.Users:
		users := st.Users(nil)
		out := make([]model.User, 0, len(users))
		for _, u := range users {
			out = append(out, u.Clone())
		}
		return out
	case store.Messages:
		return st.messages
	case store.Settings:
		return st.settings
	case store.Sessions:
		return st.sessions.Sessions()
	case store.IPBlacklist:
		return st.ipBlacklist
	case store.EmailBlacklist:
		return st.emailBlacklist
	case store.VerificationAttempts:
		snap := st.verifications.Snapshot()
		ips := make([]string, 0, len(snap))
		for ip := range snap {
			ips = append(ips, ip)
		}
		sort.Strings(ips)
		out := []model.VerificationAttempt{}
		for _, ip := range ips {
			for _, ts := range snap[ip] {
				out = append(out, model.VerificationAttempt{IP: ip, Timestamp: ts})
			}
		}
		return out
	case store.MentionChecks:
		ids := make([]string, 0, len(st.mentions))
		for id := range st.mentions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out := make([]model.MentionCheck, 0, len(ids))
		for _, id := range ids {
			out = append(out, *st.mentions[id])
		}
		return out
	}
	return nil
}
