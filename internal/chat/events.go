package chat

import (
	"context"
	"time"

	"github.com/Tyrowin/groupchat/internal/model"
)

type EventKind string

const (
	EventNewMessage         EventKind = "new_message"
	EventMessageRecalled    EventKind = "message_recalled"
	EventRoleChanged        EventKind = "role_changed"
	EventUserBanned         EventKind = "user_banned"
	EventUserDeleted        EventKind = "user_deleted"
	EventDisplayNameChanged EventKind = "display_name_changed"
	EventUserMuted          EventKind = "user_muted"
	EventUserUnmuted        EventKind = "user_unmuted"
)

// Event is pushed to connected clients as {"event": kind, "data": payload}.
type Event struct {
	Kind EventKind `json:"event"`
	Data any       `json:"data"`
}

type UserRef struct {
	UserID string `json:"user_id"`
}

type RoleChange struct {
	UserID  string     `json:"user_id"`
	OldRole model.Role `json:"old_role"`
	NewRole model.Role `json:"new_role"`
}

type DisplayNameChange struct {
	UserID         string  `json:"user_id"`
	OldDisplayName *string `json:"old_display_name"`
	NewDisplayName *string `json:"new_display_name"`
}

type MuteChange struct {
	UserID     string    `json:"user_id"`
	MutedUntil time.Time `json:"muted_until"`
}

// Audience selects the connected users an event is delivered to.
type Audience func(userID string) bool

// Everyone delivers to every connection.
func Everyone(string) bool { return true }

// Only delivers to the listed users.
func Only(ids ...string) Audience {
	set := toSet(ids)
	return func(userID string) bool {
		_, ok := set[userID]
		return ok
	}
}

// Except delivers to everyone but the listed users.
func Except(ids ...string) Audience {
	set := toSet(ids)
	return func(userID string) bool {
		_, ok := set[userID]
		return !ok
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Broadcaster fans events out to live connections. Implementations must not
// block the caller on network I/O.
type Broadcaster interface {
	Publish(ev Event, to Audience)
	// Terminate closes userID's connection after events already published
	// to it have been flushed.
	Terminate(userID string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(Event, Audience) {}
func (nopBroadcaster) Terminate(string)        {}

type delivery struct {
	event     Event
	audience  Audience
	terminate string
}

// outbox collects the side effects of one operation so they can be released
// after the registry lock is dropped.
type outbox struct {
	deliveries []delivery
	notices    []func(ctx context.Context) error
}

func (o *outbox) publish(ev Event, to Audience) {
	o.deliveries = append(o.deliveries, delivery{event: ev, audience: to})
}

func (o *outbox) terminate(userID string) {
	o.deliveries = append(o.deliveries, delivery{terminate: userID})
}

func (o *outbox) notify(fn func(ctx context.Context) error) {
	o.notices = append(o.notices, fn)
}
