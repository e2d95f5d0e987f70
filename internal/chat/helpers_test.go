package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/groupchat/internal/clock"
	"github.com/Tyrowin/groupchat/internal/notify"
	"github.com/Tyrowin/groupchat/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const password = "secret1"

type sent struct {
	event     Event
	audience  Audience
	terminate string
}

type recordingBroadcaster struct {
	mu        sync.Mutex
	items     []sent
	onPublish func()
}

func (b *recordingBroadcaster) Publish(ev Event, to Audience) {
	if b.onPublish != nil {
		b.onPublish()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, sent{event: ev, audience: to})
}

func (b *recordingBroadcaster) Terminate(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, sent{terminate: userID})
}

// deliveredTo returns the events userID's connection would have received.
func (b *recordingBroadcaster) deliveredTo(userID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, s := range b.items {
		if s.terminate == "" && s.audience(userID) {
			out = append(out, s.event)
		}
	}
	return out
}

func (b *recordingBroadcaster) terminated() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, s := range b.items {
		if s.terminate != "" {
			out = append(out, s.terminate)
		}
	}
	return out
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}

type fixture struct {
	clock *clock.Fake
	store *store.Memory
	mail  *notify.Recorder
	bus   *recordingBroadcaster
	reg   *Registry
	svc   *Service
	ips   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock: clock.NewFake(epoch),
		store: store.NewMemory(),
		mail:  notify.NewRecorder(),
		bus:   &recordingBroadcaster{},
	}
	f.reg = NewRegistry(f.store, f.clock)
	require.NoError(t, f.reg.Load(context.Background()))
	f.svc = NewService(f.reg,
		WithNotifier(f.mail),
		WithBroadcaster(f.bus),
		WithHashCost(bcrypt.MinCost),
	)
	return f
}

func (f *fixture) nextIP() string {
	f.ips++
	return fmt.Sprintf("10.0.%d.%d", f.ips/250, f.ips%250+1)
}

// register runs the full verification and registration flow from a fresh address.
func (f *fixture) register(t *testing.T, username string) RegisterResult {
	t.Helper()
	ctx := context.Background()
	ip := f.nextIP()
	email := username + "@example.com"

	require.NoError(t, f.svc.SendVerificationCode(ctx, ip, email))
	code, ok := f.mail.LastCode(email)
	require.True(t, ok)

	res, err := f.svc.Register(ctx, RegisterParams{
		Username:         username,
		Email:            email,
		Password:         password,
		VerificationCode: code,
		IP:               ip,
	})
	require.NoError(t, err)
	return res
}

type room struct {
	admin, deputy, alice, bob RegisterResult
}

// seed registers an admin, a deputy and two members.
func (f *fixture) seed(t *testing.T) room {
	t.Helper()
	r := room{
		admin:  f.register(t, "admin"),
		deputy: f.register(t, "deputy"),
		alice:  f.register(t, "alice"),
		bob:    f.register(t, "bob"),
	}
	require.NoError(t, f.svc.SetDeputyAdmin(context.Background(), r.admin.Token, r.deputy.User.ID, true))
	f.bus.reset()
	return r
}
