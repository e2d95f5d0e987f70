package model

type Settings struct {
	RegistrationOpen bool `json:"registration_open"`
	RequireApproval  bool `json:"require_approval"`
}

// DefaultSettings opens registration without approval.
func DefaultSettings() Settings {
	return Settings{RegistrationOpen: true, RequireApproval: false}
}

// NeedsApproval reports whether a new (non-first) registrant starts Pending.
func (s Settings) NeedsApproval() bool {
	return s.RequireApproval && s.RegistrationOpen
}
