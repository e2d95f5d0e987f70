package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Tyrowin/groupchat/internal/model"
	"github.com/Tyrowin/groupchat/internal/policy"
	"github.com/Tyrowin/groupchat/internal/store"
)

// adminRead resolves token and checks action before running fn.
func (s *Service) adminRead(token string, action policy.Action, fn func(*State)) error {
	var err error
	s.reg.Read(func(st *State) {
		var u *model.User
		if u, err = actor(st, token); err != nil {
			return
		}
		if err = forbidden(policy.Authorize(subject(u), subject(u), action)); err != nil {
			return
		}
		fn(st)
	})
	return err
}

func (s *Service) PendingUsers(token string) ([]model.Profile, error) {
	var out []model.Profile
	err := s.adminRead(token, policy.ManageUsers, func(st *State) {
		out = profiles(st.Users(func(u *model.User) bool { return u.Status == model.UserStatusPending }))
	})
	return out, err
}

func (s *Service) ActiveUsers(token string) ([]model.Profile, error) {
	var out []model.Profile
	err := s.adminRead(token, policy.ManageUsers, func(st *State) {
		out = profiles(st.Users(func(u *model.User) bool { return u.Status == model.UserStatusActive }))
	})
	return out, err
}

func (s *Service) Settings(token string) (model.Settings, error) {
	var settings model.Settings
	err := s.adminRead(token, policy.ManageSettings, func(st *State) { settings = st.Settings() })
	return settings, err
}

func (s *Service) UpdateSettings(ctx context.Context, token string, settings model.Settings) error {
	return s.update(ctx, func(tx *Tx, _ *outbox) error {
		admin, err := actor(tx.State, token)
		if err != nil {
			return err
		}
		if err := forbidden(policy.Authorize(subject(admin), subject(admin), policy.ManageSettings)); err != nil {
			return err
		}
		tx.settings = settings
		tx.Touch(store.Settings)
		return nil
	})
}

// pendingTarget resolves an admin actor and a user awaiting approval.
func pendingTarget(tx *Tx, token, userID string) (*model.User, error) {
	admin, err := actor(tx.State, token)
	if err != nil {
		return nil, err
	}
	if err := forbidden(policy.Authorize(subject(admin), subject(admin), policy.ManageUsers)); err != nil {
		return nil, err
	}
	u, ok := tx.User(userID)
	if !ok || u.Status != model.UserStatusPending {
		return nil, notFound("no pending registration for user %q", userID)
	}
	return u, nil
}

// ApproveUser activates a pending registration and notifies the user.
func (s *Service) ApproveUser(ctx context.Context, token, userID string) error {
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		u, err := pendingTarget(tx, token, userID)
		if err != nil {
			return err
		}
		u.Status = model.UserStatusActive
		tx.Touch(store.Users)

		email, username := u.Email, u.Username
		out.notify(func(ctx context.Context) error {
			return s.notifier.SendApprovalNotice(ctx, email, username)
		})
		return nil
	})
}

// RejectUser removes a pending registration and bars its e-mail address
// permanently.
func (s *Service) RejectUser(ctx context.Context, token, userID string) error {
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		u, err := pendingTarget(tx, token, userID)
		if err != nil {
			return err
		}
		tx.removeUser(u.ID)
		tx.blacklistEmail(u.Email)
		tx.Touch(store.Users, store.Sessions, store.EmailBlacklist, store.MentionChecks)

		email := u.Email
		out.notify(func(ctx context.Context) error {
			return s.notifier.SendRejectionNotice(ctx, email)
		})
		return nil
	})
}

type AddUserParams struct {
	Username string
	Email    string
	Password string
	Avatar   *string
}

// AddUser creates an active Member directly, bypassing verification.
func (s *Service) AddUser(ctx context.Context, token string, p AddUserParams) (model.Profile, error) {
	p.Email = emailKey(p.Email)
	if err := validatePassword(p.Password); err != nil {
		return model.Profile{}, err
	}
	digest, err := s.hash(p.Password)
	if err != nil {
		return model.Profile{}, fmt.Errorf("hashing password: %w", err)
	}

	var profile model.Profile
	err = s.update(ctx, func(tx *Tx, _ *outbox) error {
		admin, err := actor(tx.State, token)
		if err != nil {
			return err
		}
		if err := forbidden(policy.Authorize(subject(admin), subject(admin), policy.ManageUsers)); err != nil {
			return err
		}
		if err := validateUsername(p.Username); err != nil {
			return err
		}
		if err := validateEmail(p.Email); err != nil {
			return err
		}
		if _, taken := tx.UserByEmail(p.Email); taken {
			return invalid("email address already registered")
		}
		if _, taken := tx.UserByUsername(p.Username); taken {
			return invalid("username already taken")
		}

		u := &model.User{
			ID:           uuid.NewString(),
			Username:     p.Username,
			Email:        p.Email,
			PasswordHash: digest,
			Avatar:       p.Avatar,
			Role:         model.RoleMember,
			Status:       model.UserStatusActive,
			CreatedAt:    tx.now,
			LastIPs:      []string{},
		}
		tx.putUser(u)
		tx.Touch(store.Users)
		profile = u.Profile()
		return nil
	})
	return profile, err
}

// DeleteUser removes another user outright and disconnects them.
func (s *Service) DeleteUser(ctx context.Context, token, userID string) error {
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		admin, err := actor(tx.State, token)
		if err != nil {
			return err
		}
		if err := forbidden(policy.Authorize(subject(admin), subject(admin), policy.ManageUsers)); err != nil {
			return err
		}
		target, ok := tx.User(userID)
		if !ok {
			return notFound("user %q does not exist", userID)
		}
		if err := forbidden(policy.Authorize(subject(admin), subject(target), policy.DeleteUser)); err != nil {
			return err
		}

		tx.removeUser(target.ID)
		tx.Touch(store.Users, store.Sessions, store.MentionChecks)

		out.publish(Event{Kind: EventUserDeleted, Data: UserRef{UserID: target.ID}}, Everyone)
		out.terminate(target.ID)
		return nil
	})
}
