package chat

import (
	"context"

	"github.com/Tyrowin/groupchat/internal/model"
	"github.com/Tyrowin/groupchat/internal/policy"
	"github.com/Tyrowin/groupchat/internal/store"
)

// DeleteAccount removes the caller's own account. The Admin cannot.
func (s *Service) DeleteAccount(ctx context.Context, token string) error {
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		u, err := actor(tx.State, token)
		if err != nil {
			return err
		}
		if err := forbidden(policy.Authorize(subject(u), subject(u), policy.DeleteAccount)); err != nil {
			return err
		}

		tx.removeUser(u.ID)
		tx.Touch(store.Users, store.Sessions, store.MentionChecks)

		out.publish(Event{Kind: EventUserDeleted, Data: UserRef{UserID: u.ID}}, Everyone)
		out.terminate(u.ID)
		return nil
	})
}

// MentionChecks lists the message ids the caller has dismissed.
func (s *Service) MentionChecks(token string) ([]string, error) {
	var (
		ids []string
		err error
	)
	s.reg.Read(func(st *State) {
		var user *model.User
		if user, err = actor(st, token); err != nil {
			return
		}
		ids = []string{}
		if m, ok := st.MentionCheck(user.ID); ok {
			ids = append(ids, m.CheckedMessageIDs...)
		}
	})
	return ids, err
}

func (s *Service) MarkMentionsChecked(ctx context.Context, token string, messageIDs []string) error {
	return s.update(ctx, func(tx *Tx, _ *outbox) error {
		u, err := actor(tx.State, token)
		if err != nil {
			return err
		}
		m, ok := tx.MentionCheck(u.ID)
		if !ok {
			m = &model.MentionCheck{UserID: u.ID, CheckedMessageIDs: []string{}}
			tx.mentions[u.ID] = m
		}
		m.Mark(messageIDs, tx.now)
		tx.Touch(store.MentionChecks)
		return nil
	})
}
