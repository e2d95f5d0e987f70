package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/Tyrowin/groupchat/internal/model"
	"github.com/Tyrowin/groupchat/internal/policy"
	"github.com/Tyrowin/groupchat/internal/store"
)

func canSeeRecalled(viewer *model.User, m *model.Message) bool {
	return viewer.Role == model.RoleAdmin || viewer.Role == model.RoleDeputyAdmin || viewer.ID == m.UserID
}

// RecentMessages returns the last messages joined with their authors.
// Recalled content is only included for viewers allowed to see it.
func (s *Service) RecentMessages(token string) ([]model.MessageView, error) {
	var (
		out []model.MessageView
		err error
	)
	s.reg.Read(func(st *State) {
		var viewer *model.User
		if viewer, err = actor(st, token); err != nil {
			return
		}
		msgs := st.Messages()
		if len(msgs) > recentWindow {
			msgs = msgs[len(msgs)-recentWindow:]
		}
		out = make([]model.MessageView, 0, len(msgs))
		for i := range msgs {
			m := &msgs[i]
			author, _ := st.User(m.UserID)
			out = append(out, m.View(author, canSeeRecalled(viewer, m)))
		}
	})
	return out, err
}

// SendMessage appends a message to the room and broadcasts it.
func (s *Service) SendMessage(ctx context.Context, token, content string) (model.MessageView, error) {
	content, verr := normalizeMessage(content)

	var view model.MessageView
	err := s.update(ctx, func(tx *Tx, out *outbox) error {
		u, err := actor(tx.State, token)
		if err != nil {
			return err
		}
		if u.MutedAt(tx.now) {
			return &RateLimitError{Reason: "you are muted", RetryAfter: u.MutedUntil.Sub(tx.now)}
		}
		if verr != nil {
			return verr
		}

		m := model.Message{
			ID:        uuid.NewString(),
			UserID:    u.ID,
			Content:   content,
			Timestamp: tx.now,
		}
		tx.messages = append(tx.messages, m)
		tx.Touch(store.Messages)

		view = m.View(u, false)
		out.publish(Event{Kind: EventNewMessage, Data: view}, Everyone)
		return nil
	})
	return view, err
}

// RecallMessage redacts a message. Admins, deputies and the author receive
// the original content in the event; everyone else gets the redacted form.
func (s *Service) RecallMessage(ctx context.Context, token, messageID string) error {
	return s.update(ctx, func(tx *Tx, out *outbox) error {
		u, err := actor(tx.State, token)
		if err != nil {
			return err
		}
		i, ok := tx.message(messageID)
		if !ok || tx.messages[i].Recalled {
			return notFound("message does not exist or was already recalled")
		}
		m := &tx.messages[i]

		author, known := tx.User(m.UserID)
		target := policy.Subject{ID: m.UserID, Role: model.RoleMember}
		if known {
			target = subject(author)
		}
		if err := forbidden(policy.Authorize(subject(u), target, policy.RecallMessage)); err != nil {
			return err
		}

		m.Recall()
		tx.Touch(store.Messages)

		insiders := append(privileged(tx.State), m.UserID)
		out.publish(Event{Kind: EventMessageRecalled, Data: m.View(author, true)}, Only(insiders...))
		out.publish(Event{Kind: EventMessageRecalled, Data: m.View(author, false)}, Except(insiders...))
		return nil
	})
}
