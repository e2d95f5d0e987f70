// Package chat holds the group chat's domain state and every operation on
// it. All mutations go through one Registry lock; events and e-mail leave
// the process only after the lock is released.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/groupchat/internal/model"
	"github.com/Tyrowin/groupchat/internal/notify"
	"github.com/Tyrowin/groupchat/internal/policy"
)

const noticeTimeout = time.Minute

// Service is the state-owning object shared by every request handler.
type Service struct {
	reg         *Registry
	notifier    notify.Notifier
	broadcaster Broadcaster
	hashCost    int
	background  sync.WaitGroup
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func NewService(reg *Registry, opts ...Option) *Service {
	s := &Service{
		reg:         reg,
		notifier:    notify.Log{},
		broadcaster: nopBroadcaster{},
		hashCost:    bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Registry() *Registry {
	return s.reg
}

func (s *Service) now() time.Time {
	return s.reg.clock.Now()
}

// update runs fn under the registry lock and releases the outbox only when
// fn succeeded.
func (s *Service) update(ctx context.Context, fn func(tx *Tx, out *outbox) error) error {
	out := &outbox{}
	if err := s.reg.Update(ctx, func(tx *Tx) error { return fn(tx, out) }); err != nil {
		return err
	}
	s.flush(out)
	return nil
}

func (s *Service) flush(out *outbox) {
	for _, d := range out.deliveries {
		if d.terminate != "" {
			s.broadcaster.Terminate(d.terminate)
			continue
		}
		s.broadcaster.Publish(d.event, d.audience)
	}
	for _, notice := range out.notices {
		s.background.Add(1)
		go func(notice func(context.Context) error) {
			defer s.background.Done()
			ctx, cancel := context.WithTimeout(context.Background(), noticeTimeout)
			defer cancel()
			if err := notice(ctx); err != nil {
				log.Warnf("Sending notification failed: %v", err)
			}
		}(notice)
	}
}

// Wait blocks until background notifications have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// actor resolves the session token to its user.
func actor(st *State, token string) (*model.User, error) {
	u, ok := st.ResolveSession(token)
	if !ok {
		return nil, unauthorized()
	}
	return u, nil
}

func subject(u *model.User) policy.Subject {
	return policy.Subject{ID: u.ID, Role: u.Role}
}

func (s *Service) hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// privileged lists users who may see recalled message content.
func privileged(st *State) []string {
	var ids []string
	for _, u := range st.Users(func(u *model.User) bool {
		return u.Role == model.RoleAdmin || u.Role == model.RoleDeputyAdmin
	}) {
		ids = append(ids, u.ID)
	}
	return ids
}

func profiles(users []*model.User) []model.Profile {
	out := make([]model.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}
