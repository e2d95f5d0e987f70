package server

import "strings"

// response is the JSON envelope returned by every API endpoint.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type registerRequest struct {
	Username         string  `json:"username"`
	Email            string  `json:"email"`
	Password         string  `json:"password"`
	Avatar           *string `json:"avatar"`
	VerificationCode string  `json:"verification_code"`
}

type addUserRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Avatar   *string `json:"avatar"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type deputyRequest struct {
	UserID   string `json:"user_id"`
	IsDeputy bool   `json:"is_deputy"`
}

type muteRequest struct {
	UserID          string `json:"user_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type recallRequest struct {
	MessageID string `json:"message_id"`
}

type mentionsRequest struct {
	MessageIDs []string `json:"message_ids"`
}

type displayNameRequest struct {
	UserID      string  `json:"user_id"`
	DisplayName *string `json:"display_name"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
