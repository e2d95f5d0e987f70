package chat

import (
	"context"
	"time"

	"github.com/Tyrowin/groupchat/internal/model"
	"github.com/Tyrowin/groupchat/internal/policy"
	"github.com/Tyrowin/groupchat/internal/store"
)

// moderate resolves actor and target and applies the policy for action.
func moderate(tx *Tx, token, userID string, action policy.Action) (*model.User, *model.User, error) {
	actorUser, err := actor(tx.State, token)
	if err != nil {
		return nil, nil, err
	}
	target, ok := tx.User(userID)
	if !ok {
		return nil, nil, notFound("user %q does not exist", userID)
	}
	if err := forbidden(policy.Authorize(subject(actorUser), subject(target), action)); err != nil {
		return nil, nil, err
	}
	return actorUser, target, nil
}

// SetDeputyAdmin promotes a Member to DeputyAdmin or demotes a DeputyAdmin.
func (s *Service) SetDeputyAdmin(ctx context.Context, token, userID string, deputy bool) error {
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		_, target, err := moderate(tx, token, userID, policy.SetDeputyAdmin)
		if err != nil {
			return err
		}

		role := model.RoleMember
		if deputy {
			role = model.RoleDeputyAdmin
		}
		if target.Role == role {
			return nil
		}

		old := target.Role
		target.Role = role
		tx.Touch(store.Users)

		out.publish(Event{Kind: EventRoleChanged, Data: RoleChange{UserID: target.ID, OldRole: old, NewRole: role}}, Everyone)
		return nil
	})
}

// MuteUser blocks a user from sending messages for minutes.
func (s *Service) MuteUser(ctx context.Context, token, userID string, minutes int) error {
	if minutes <= 0 || minutes > maxMuteMinutes {
		return invalid("mute duration must be between 1 and %d minutes", maxMuteMinutes)
	}
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		_, target, err := moderate(tx, token, userID, policy.Mute)
		if err != nil {
			return err
		}

		until := tx.now.Add(time.Duration(minutes) * time.Minute)
		target.MutedUntil = &until
		tx.Touch(store.Users)

		out.publish(Event{Kind: EventUserMuted, Data: MuteChange{UserID: target.ID, MutedUntil: until}}, Everyone)
		return nil
	})
}

func (s *Service) UnmuteUser(ctx context.Context, token, userID string) error {
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		_, target, err := moderate(tx, token, userID, policy.Unmute)
		if err != nil {
			return err
		}

		target.MutedUntil = nil
		tx.Touch(store.Users)

		out.publish(Event{Kind: EventUserUnmuted, Data: UserRef{UserID: target.ID}}, Everyone)
		return nil
	})
}

// BanUser removes a user, bars their e-mail address, revokes every session
// and closes their connection after the ban event has been delivered.
func (s *Service) BanUser(ctx context.Context, token, userID string) error {
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		_, target, err := moderate(tx, token, userID, policy.Ban)
		if err != nil {
			return err
		}

		tx.removeUser(target.ID)
		tx.blacklistEmail(target.Email)
		tx.Touch(store.Users, store.Sessions, store.EmailBlacklist, store.MentionChecks)

		out.publish(Event{Kind: EventUserBanned, Data: UserRef{UserID: target.ID}}, Everyone)
		out.terminate(target.ID)
		return nil
	})
}

// UpdateDisplayName sets or clears a display name. An empty userID means the
// caller's own.
func (s *Service) UpdateDisplayName(ctx context.Context, token, userID string, name *string) error {
	name, verr := normalizeDisplayName(name)
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		u, err := actor(tx.State, token)
		if err != nil {
			return err
		}
		if userID == "" {
			userID = u.ID
		}
		_, target, err := moderate(tx, token, userID, policy.EditDisplayName)
		if err != nil {
			return err
		}
		if verr != nil {
			return verr
		}

		old := target.DisplayName
		target.DisplayName = name
		tx.Touch(store.Users)

		out.publish(Event{Kind: EventDisplayNameChanged, Data: DisplayNameChange{
			UserID:         target.ID,
			OldDisplayName: old,
			NewDisplayName: name,
		}}, Everyone)
		return nil
	})
}
