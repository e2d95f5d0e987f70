package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/Tyrowin/groupchat/internal/model"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "session_token"

type authData struct {
	User    model.Profile `json:"user"`
	Token   string        `json:"token,omitempty"`
	Pending bool          `json:"pending,omitempty"`
}

// sessionToken reads the session cookie, falling back to a bearer token.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := r.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func setSessionCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.Scheme() == "https",
	})
}

func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func ok(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusOK, response{Success: true, Message: message, Data: data})
}

// fail maps a service error onto an HTTP status and the error envelope.
func fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	message := "internal error"

	var limited *chat.RateLimitError
	switch {
	case errors.As(err, &limited):
		status = http.StatusForbidden
		message = err.Error()
		c.Response().Header().Set("Retry-After", strconv.Itoa(chat.RetryAfterSeconds(limited.RetryAfter)))
	case errors.Is(err, chat.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, chat.ErrPolicyDenied):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, chat.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, chat.ErrUnauthorized):
		status, message = http.StatusUnauthorized, err.Error()
	default:
		log.Errorf("%s %s failed: %v", c.Request().Method, c.Path(), err)
	}

	return c.JSON(status, response{Success: false, Message: message})
}

// bind decodes the request body or answers 400.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return c.JSON(http.StatusBadRequest, response{Success: false, Message: "malformed request body"})
	}
	return nil
}

// HealthHandler reports that the process is serving.
func (s *Server) HealthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "GroupChat server is running!")
}

func (s *Server) publicSettings(c echo.Context) error {
	return ok(c, "", s.svc.PublicSettings())
}

func (s *Server) sendVerificationCode(c echo.Context) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.svc.SendVerificationCode(c.Request().Context(), c.RealIP(), req.Email); err != nil {
		return fail(c, err)
	}
	return ok(c, "verification code sent", nil)
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.svc.Register(c.Request().Context(), chat.RegisterParams{
		Username:         req.Username,
		Email:            req.Email,
		Password:         req.Password,
		Avatar:           req.Avatar,
		VerificationCode: req.VerificationCode,
		IP:               c.RealIP(),
	})
	if err != nil {
		return fail(c, err)
	}
	if res.Pending {
		return ok(c, "registration received, awaiting approval", authData{User: res.User, Pending: true})
	}
	setSessionCookie(c, res.Token)
	return ok(c, "registered", authData{User: res.User, Token: res.Token})
}

func (s *Server) login(c echo.Context) error {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.svc.Login(c.Request().Context(), req.Email, req.Password, c.RealIP())
	if err != nil {
		return fail(c, err)
	}
	setSessionCookie(c, res.Token)
	return ok(c, "logged in", authData{User: res.User, Token: res.Token})
}

func (s *Server) logout(c echo.Context) error {
	if err := s.svc.Logout(c.Request().Context(), sessionToken(c.Request())); err != nil {
		return fail(c, err)
	}
	clearSessionCookie(c)
	return ok(c, "logged out", nil)
}

func (s *Server) verifyEmail(c echo.Context) error {
	if _, err := s.svc.Authenticate(sessionToken(c.Request())); err != nil {
		return fail(c, err)
	}
	return ok(c, "logged in", nil)
}

func (s *Server) currentUser(c echo.Context) error {
	profile, err := s.svc.CurrentUser(sessionToken(c.Request()))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", profile)
}

func (s *Server) pendingUsers(c echo.Context) error {
	users, err := s.svc.PendingUsers(sessionToken(c.Request()))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", users)
}

func (s *Server) users(c echo.Context) error {
	users, err := s.svc.ActiveUsers(sessionToken(c.Request()))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", users)
}

// userAction binds a {"user_id"} body and applies fn to it.
func (s *Server) userAction(message string, fn func(c echo.Context, token, userID string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req userRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		if err := fn(c, sessionToken(c.Request()), req.UserID); err != nil {
			return fail(c, err)
		}
		return ok(c, message, nil)
	}
}

func (s *Server) approveUser(c echo.Context, token, userID string) error {
	return s.svc.ApproveUser(c.Request().Context(), token, userID)
}

func (s *Server) rejectUser(c echo.Context, token, userID string) error {
	return s.svc.RejectUser(c.Request().Context(), token, userID)
}

func (s *Server) deleteUser(c echo.Context, token, userID string) error {
	return s.svc.DeleteUser(c.Request().Context(), token, userID)
}

func (s *Server) unmuteUser(c echo.Context, token, userID string) error {
	return s.svc.UnmuteUser(c.Request().Context(), token, userID)
}

func (s *Server) banUser(c echo.Context, token, userID string) error {
	return s.svc.BanUser(c.Request().Context(), token, userID)
}

func (s *Server) addUser(c echo.Context) error {
	var req addUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	profile, err := s.svc.AddUser(c.Request().Context(), sessionToken(c.Request()), chat.AddUserParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   req.Avatar,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "user added", profile)
}

func (s *Server) settings(c echo.Context) error {
	settings, err := s.svc.Settings(sessionToken(c.Request()))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", settings)
}

func (s *Server) updateSettings(c echo.Context) error {
	var req model.Settings
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.svc.UpdateSettings(c.Request().Context(), sessionToken(c.Request()), req); err != nil {
		return fail(c, err)
	}
	return ok(c, "settings updated", req)
}

func (s *Server) messages(c echo.Context) error {
	views, err := s.svc.RecentMessages(sessionToken(c.Request()))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", views)
}

func (s *Server) sendMessage(c echo.Context) error {
	var req messageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	view, err := s.svc.SendMessage(c.Request().Context(), sessionToken(c.Request()), req.Content)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "message sent", view)
}

func (s *Server) recallMessage(c echo.Context) error {
	var req recallRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.svc.RecallMessage(c.Request().Context(), sessionToken(c.Request()), req.MessageID); err != nil {
		return fail(c, err)
	}
	return ok(c, "message recalled", nil)
}

func (s *Server) setDeputyAdmin(c echo.Context) error {
	var req deputyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.svc.SetDeputyAdmin(c.Request().Context(), sessionToken(c.Request()), req.UserID, req.IsDeputy); err != nil {
		return fail(c, err)
	}
	return ok(c, "role updated", nil)
}

func (s *Server) muteUser(c echo.Context) error {
	var req muteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.svc.MuteUser(c.Request().Context(), sessionToken(c.Request()), req.UserID, req.DurationMinutes); err != nil {
		return fail(c, err)
	}
	return ok(c, "user muted", nil)
}

func (s *Server) updateDisplayName(c echo.Context) error {
	var req displayNameRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.svc.UpdateDisplayName(c.Request().Context(), sessionToken(c.Request()), "", req.DisplayName); err != nil {
		return fail(c, err)
	}
	return ok(c, "display name updated", nil)
}

func (s *Server) updateUserDisplayName(c echo.Context) error {
	var req displayNameRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.UserID == "" {
		return fail(c, fmt.Errorf("%w: user_id is required", chat.ErrValidation))
	}
	if err := s.svc.UpdateDisplayName(c.Request().Context(), sessionToken(c.Request()), req.UserID, req.DisplayName); err != nil {
		return fail(c, err)
	}
	return ok(c, "display name updated", nil)
}

func (s *Server) mentionChecks(c echo.Context) error {
	ids, err := s.svc.MentionChecks(sessionToken(c.Request()))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "", ids)
}

func (s *Server) markMentionsChecked(c echo.Context) error {
	var req mentionsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := s.svc.MarkMentionsChecked(c.Request().Context(), sessionToken(c.Request()), req.MessageIDs); err != nil {
		return fail(c, err)
	}
	return ok(c, "mentions marked", nil)
}

func (s *Server) deleteAccount(c echo.Context) error {
	if err := s.svc.DeleteAccount(c.Request().Context(), sessionToken(c.Request())); err != nil {
		return fail(c, err)
	}
	clearSessionCookie(c)
	return ok(c, "account deleted", nil)
}

// WebSocketHandler authenticates the session before upgrading, then hands the
// connection to the hub.
func (s *Server) WebSocketHandler(c echo.Context) error {
	r := c.Request()
	user, err := s.svc.Authenticate(sessionToken(r))
	if err != nil {
		return fail(c, err)
	}
	if !s.origins.Check(r) {
		return c.JSON(http.StatusForbidden, response{Success: false, Message: "origin not allowed"})
	}

	conn, err := s.upgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade error from %s: %v", c.RealIP(), err)
		return nil
	}

	client := NewClient(conn, s.hub, user.ID, c.RealIP(), s.cfg)
	if !s.hub.Register(client) {
		return nil
	}

	// A ban or deletion committed between authentication and registration
	// would otherwise leave this connection open.
	if _, err := s.svc.Authenticate(sessionToken(r)); err != nil {
		s.hub.Terminate(user.ID)
	}
	return nil
}
