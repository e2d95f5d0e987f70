package model

import "time"

// MaxRecentIPs bounds the per-user IP history ring.
const MaxRecentIPs = 30

type Role string

const (
	RoleAdmin       Role = "Admin"
	RoleDeputyAdmin Role = "DeputyAdmin"
	RoleMember      Role = "Member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDeputyAdmin, RoleMember:
		return true
	}
	return false
}

// Rank orders roles for hierarchy comparisons; higher outranks lower.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleDeputyAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

type UserStatus string

const (
	UserStatusPending UserStatus = "Pending"
	UserStatusActive  UserStatus = "Active"
	UserStatusBanned  UserStatus = "Banned"
)

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash"`
	Avatar       *string    `json:"avatar,omitempty"`
	DisplayName  *string    `json:"display_name,omitempty"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	LastIPs      []string   `json:"last_ips"`
	MutedUntil   *time.Time `json:"muted_until,omitempty"`
}

// RecordIP appends ip to the recent-IP ring, dropping the oldest entry once
// MaxRecentIPs is reached.
func (u *User) RecordIP(ip string) {
	if len(u.LastIPs) >= MaxRecentIPs {
		u.LastIPs = append(u.LastIPs[:0], u.LastIPs[len(u.LastIPs)-MaxRecentIPs+1:]...)
	}
	u.LastIPs = append(u.LastIPs, ip)
}

// MutedAt reports whether the user is muted at now.
func (u *User) MutedAt(now time.Time) bool {
	return u.MutedUntil != nil && u.MutedUntil.After(now)
}

// Clone returns a deep copy safe to hand out after the registry lock is released.
func (u *User) Clone() User {
	c := *u
	c.LastIPs = append([]string(nil), u.LastIPs...)
	if u.Avatar != nil {
		v := *u.Avatar
		c.Avatar = &v
	}
	if u.DisplayName != nil {
		v := *u.DisplayName
		c.DisplayName = &v
	}
	if u.MutedUntil != nil {
		v := *u.MutedUntil
		c.MutedUntil = &v
	}
	return c
}

// PublicUser is the projection of a user that other members may see.
type PublicUser struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Avatar      *string    `json:"avatar,omitempty"`
	DisplayName *string    `json:"display_name,omitempty"`
	Role        Role       `json:"role"`
	MutedUntil  *time.Time `json:"muted_until,omitempty"`
}

// Public strips credentials, e-mail and IP history.
func (u *User) Public() PublicUser {
	c := u.Clone()
	return PublicUser{
		ID:          c.ID,
		Username:    c.Username,
		Avatar:      c.Avatar,
		DisplayName: c.DisplayName,
		Role:        c.Role,
		MutedUntil:  c.MutedUntil,
	}
}

// Profile is what a user sees about themself and what admins see in the console.
type Profile struct {
	PublicUser
	Email     string     `json:"email"`
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	LastIPs   []string   `json:"last_ips"`
}

// Profile strips only the password digest.
func (u *User) Profile() Profile {
	c := u.Clone()
	return Profile{
		PublicUser: c.Public(),
		Email:      c.Email,
		Status:     c.Status,
		CreatedAt:  c.CreatedAt,
		LastIPs:    c.LastIPs,
	}
}
