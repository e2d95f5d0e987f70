package model

import "time"

type Message struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
	Recalled        bool      `json:"recalled"`
	OriginalContent *string   `json:"original_content,omitempty"`
}

// Recall marks the message recalled, moving its content into OriginalContent.
// It reports false if the message was already recalled.
func (m *Message) Recall() bool {
	if m.Recalled {
		return false
	}
	original := m.Content
	m.OriginalContent = &original
	m.Content = ""
	m.Recalled = true
	return true
}

// MessageView is a message as delivered to a particular viewer, joined with
// its author. OriginalContent is only present for viewers allowed to see it.
type MessageView struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	Content         string      `json:"content"`
	Timestamp       time.Time   `json:"timestamp"`
	Recalled        bool        `json:"recalled"`
	User            *PublicUser `json:"user"`
	OriginalContent *string     `json:"original_content,omitempty"`
}

// View renders m for a viewer; withOriginal controls recalled-content disclosure.
func (m *Message) View(author *User, withOriginal bool) MessageView {
	v := MessageView{
		ID:        m.ID,
		UserID:    m.UserID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Recalled:  m.Recalled,
	}
	if author != nil {
		pub := author.Public()
		v.User = &pub
	}
	if withOriginal && m.OriginalContent != nil {
		original := *m.OriginalContent
		v.OriginalContent = &original
	}
	return v
}
