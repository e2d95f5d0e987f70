// Package policy decides which moderation actions an actor may perform on a
// target, following the role hierarchy Admin > DeputyAdmin > Member.
package policy

import (
	"errors"
	"fmt"

	"github.com/Tyrowin/groupchat/internal/model"
)

var ErrForbidden = errors.New("forbidden")

// Subject identifies a user taking part in a decision.
type Subject struct {
	ID   string
	Role model.Role
}

type Action string

const (
	RecallMessage   Action = "recall_message"
	SetDeputyAdmin  Action = "set_deputy_admin"
	Mute            Action = "mute"
	Unmute          Action = "unmute"
	Ban             Action = "ban"
	EditDisplayName Action = "edit_display_name"
	DeleteUser      Action = "delete_user"
	DeleteAccount   Action = "delete_account"
	ManageUsers     Action = "manage_users"
	ManageSettings  Action = "manage_settings"
)

// Authorize returns nil when actor may perform action on target, otherwise an
// error wrapping ErrForbidden. For actions without a target user, pass the
// actor as target.
func Authorize(actor, target Subject, action Action) error {
	self := actor.ID == target.ID

	switch action {
	case RecallMessage, EditDisplayName:
		if self {
			return nil
		}
		return outranks(actor, target, action)

	case Mute, Unmute, Ban:
		if self {
			return deny("you cannot %s yourself", verb(action))
		}
		return outranks(actor, target, action)

	case DeleteUser:
		if actor.Role != model.RoleAdmin {
			return deny("only the admin can delete users")
		}
		if self {
			return deny("you cannot delete yourself, use account deletion instead")
		}
		return nil

	case SetDeputyAdmin:
		if actor.Role != model.RoleAdmin {
			return deny("only the admin can change roles")
		}
		if target.Role == model.RoleAdmin {
			return deny("the admin's role cannot be changed")
		}
		return nil

	case DeleteAccount:
		if !self {
			return deny("you can only delete your own account")
		}
		if actor.Role == model.RoleAdmin {
			return deny("the admin account cannot be deleted")
		}
		return nil

	case ManageUsers, ManageSettings:
		if actor.Role != model.RoleAdmin {
			return deny("admin privileges required")
		}
		return nil
	}

	return deny("unknown action %q", string(action))
}

// outranks applies the hierarchy for actions on other users: an actor may
// only act on a strictly lower role.
func outranks(actor, target Subject, action Action) error {
	if actor.Role.Rank() > target.Role.Rank() {
		return nil
	}
	if actor.Role == model.RoleDeputyAdmin {
		return deny("deputy admins cannot %s an admin or another deputy admin", verb(action))
	}
	return deny("insufficient privileges to %s other users", verb(action))
}

func verb(action Action) string {
	switch action {
	case RecallMessage:
		return "recall messages of"
	case EditDisplayName:
		return "rename"
	}
	return string(action)
}

func deny(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}
