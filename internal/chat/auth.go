package chat

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/groupchat/internal/model"
	"github.com/Tyrowin/groupchat/internal/ratelimit"
	"github.com/Tyrowin/groupchat/internal/store"
)

// IPBlockDuration is how long an address is barred after exceeding the
// registration rate.
const IPBlockDuration = 24 * time.Hour

// dummyHash keeps unknown-email logins as slow as wrong-password ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not a real password"), bcrypt.MinCost)

func (s *Service) PublicSettings() model.Settings {
	var settings model.Settings
	s.reg.Read(func(st *State) { settings = st.Settings() })
	return settings
}

// SendVerificationCode e-mails a six digit code to email. The send counts
// against ip's quota only if the notifier accepted it.
func (s *Service) SendVerificationCode(ctx context.Context, ip, email string) error {
	email = emailKey(email)

	code, err := newVerificationCode()
	if err != nil {
		return err
	}

	var reservation *ratelimit.Reservation
	err = s.reg.Update(ctx, func(tx *Tx) error {
		if !tx.settings.RegistrationOpen && tx.UserCount() > 0 {
			return denied("registration is closed")
		}
		if err := validateEmail(email); err != nil {
			return err
		}
		if tx.EmailBlacklisted(email) {
			return denied("this email address may not register")
		}
		if _, taken := tx.UserByEmail(email); taken {
			return invalid("email address already registered")
		}
		res, d := tx.verifications.Reserve(ip, tx.now)
		if !d.Allowed {
			return &RateLimitError{Reason: d.Reason, RetryAfter: d.RetryAfter}
		}
		reservation = res
		return nil
	})
	if err != nil {
		return err
	}

	sendErr := s.notifier.SendVerificationCode(ctx, email, code)

	_ = s.reg.Update(context.WithoutCancel(ctx), func(tx *Tx) error {
		if sendErr != nil {
			reservation.Cancel()
			return nil
		}
		reservation.Commit()
		tx.codes[email] = model.VerificationCode{Email: email, Code: code, CreatedAt: tx.now}
		tx.Touch(store.VerificationAttempts)
		return nil
	})
	if sendErr != nil {
		return fmt.Errorf("sending verification code: %w", sendErr)
	}
	return nil
}

func newVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

type RegisterParams struct {
	Username         string
	Email            string
	Password         string
	Avatar           *string
	VerificationCode string
	IP               string
}

// RegisterResult carries a session token unless the account awaits approval.
type RegisterResult struct {
	User    model.Profile
	Token   string
	Pending bool
}

func (s *Service) Register(ctx context.Context, p RegisterParams) (RegisterResult, error) {
	p.Email = emailKey(p.Email)

	var digest string
	if validatePassword(p.Password) == nil {
		var err error
		if digest, err = s.hash(p.Password); err != nil {
			return RegisterResult{}, fmt.Errorf("hashing password: %w", err)
		}
	}

	var result RegisterResult
	err := s.reg.Update(ctx, func(tx *Tx) error {
		if block, ok := tx.IPBlock(p.IP, tx.now); ok {
			return &RateLimitError{Reason: "your address is temporarily blocked", RetryAfter: block.Until.Sub(tx.now)}
		}

		if d := tx.registrations.CheckAndRecord(p.IP, tx.now); !d.Allowed {
			tx.ipBlacklist = append(tx.ipBlacklist, model.IPBlacklistEntry{
				IP:     p.IP,
				Reason: "registration rate exceeded",
				Until:  tx.now.Add(IPBlockDuration),
			})
			tx.Touch(store.IPBlacklist)
			return &RateLimitError{Reason: d.Reason, RetryAfter: IPBlockDuration}
		}

		first := tx.UserCount() == 0
		if !first && !tx.settings.RegistrationOpen {
			return denied("registration is closed")
		}
		if err := validateUsername(p.Username); err != nil {
			return err
		}
		if err := validateEmail(p.Email); err != nil {
			return err
		}
		if err := validatePassword(p.Password); err != nil {
			return err
		}
		if tx.EmailBlacklisted(p.Email) {
			return denied("this email address may not register")
		}
		if _, taken := tx.UserByEmail(p.Email); taken {
			return invalid("email address already registered")
		}
		if _, taken := tx.UserByUsername(p.Username); taken {
			return invalid("username already taken")
		}

		code, ok := tx.VerificationCode(p.Email)
		if !ok || p.VerificationCode == "" ||
			subtle.ConstantTimeCompare([]byte(code.Code), []byte(p.VerificationCode)) != 1 {
			return invalid("invalid or expired verification code")
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
		}
		u.RecordIP(p.IP)
		switch {
		case first:
			u.Role = model.RoleAdmin
		case tx.settings.NeedsApproval():
			u.Status = model.UserStatusPending
		}

		tx.putUser(u)
		delete(tx.codes, p.Email)
		tx.Touch(store.Users)

		result = RegisterResult{Pending: u.Status == model.UserStatusPending}
		if !result.Pending {
			token, _, err := tx.sessions.Create(u.ID, tx.now)
			if err != nil {
				return err
			}
			result.Token = token
			tx.Touch(store.Sessions)
		}
		result.User = u.Profile()
		return nil
	})
	return result, err
}

type LoginResult struct {
	User  model.Profile
	Token string
}

// Login checks credentials and opens a session. Unknown addresses and wrong
// passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password, ip string) (LoginResult, error) {
	var (
		userID string
		digest []byte
	)
	s.reg.Read(func(st *State) {
		if u, ok := st.UserByEmail(email); ok {
			userID, digest = u.ID, []byte(u.PasswordHash)
		}
	})

	badCredentials := fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	if userID == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return LoginResult{}, badCredentials
	}
	if bcrypt.CompareHashAndPassword(digest, []byte(password)) != nil {
		return LoginResult{}, badCredentials
	}

	var result LoginResult
	err := s.reg.Update(ctx, func(tx *Tx) error {
		u, ok := tx.User(userID)
		if !ok || u.PasswordHash != string(digest) {
			return badCredentials
		}
		switch u.Status {
		case model.UserStatusPending:
			return denied("account is awaiting approval")
		case model.UserStatusBanned:
			return denied("account is banned")
		}

		token, _, err := tx.sessions.Create(u.ID, tx.now)
		if err != nil {
			return err
		}
		u.RecordIP(ip)
		tx.Touch(store.Users, store.Sessions)

		result = LoginResult{User: u.Profile(), Token: token}
		return nil
	})
	return result, err
}

// Logout revokes token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.reg.Update(ctx, func(tx *Tx) error {
		if tx.sessions.Revoke(token) {
			tx.Touch(store.Sessions)
		}
		return nil
	})
}

// Authenticate returns a copy of the user owning token.
func (s *Service) Authenticate(token string) (model.User, error) {
	var (
		user model.User
		err  error
	)
	s.reg.Read(func(st *State) {
		u, ok := st.ResolveSession(token)
		if !ok {
			err = unauthorized()
			return
		}
		user = u.Clone()
	})
	return user, err
}

func (s *Service) CurrentUser(token string) (model.Profile, error) {
	u, err := s.Authenticate(token)
	if err != nil {
		return model.Profile{}, err
	}
	return u.Profile(), nil
}
