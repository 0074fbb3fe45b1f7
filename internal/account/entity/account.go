package entity

import (
	"strings"
	"time"
)

// Role is the closed set of account kinds.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleHost        Role = "host"
	RoleAdmin       Role = "admin"
)

// MaxStarters is the number of conversation starters a profile keeps.
const MaxStarters = 3

// ParseRole maps a wire value to a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleParticipant:
		return RoleParticipant, true
	case RoleHost:
		return RoleHost, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

type Socials struct {
	Instagram string `json:"instagram,omitempty" bson:"instagram,omitempty" yaml:"instagram,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty" bson:"linkedin,omitempty" yaml:"linkedin,omitempty"`
	WhatsApp  string `json:"whatsapp,omitempty" bson:"whatsapp,omitempty" yaml:"whatsapp,omitempty"`
}

// Profile holds the user-editable fields shown in the host directory.
type Profile struct {
	Name        string   `json:"name,omitempty" bson:"name,omitempty"`
	PhotoURL    string   `json:"photo_url,omitempty" bson:"photoURL,omitempty"`
	Bio         string   `json:"bio,omitempty" bson:"bio,omitempty"`
	Nationality string   `json:"nationality,omitempty" bson:"nationality,omitempty"`
	Starters    []string `json:"starters,omitempty" bson:"starters,omitempty"`
	Interests   []string `json:"interests,omitempty" bson:"interests,omitempty"`
	Socials     Socials  `json:"socials" bson:"socials"`
}

// FirstStarter returns the first non-blank conversation starter, if any.
func (p Profile) FirstStarter() string {
	for _, s := range p.Starters {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Account is the record kept per identity subject.
//
// UnlockedTargets only grows during normal operation and never contains the
// account's own id. UnlockCount is the number of distinct viewers that have
// unlocked this account; it is only meaningful for hosts.
type Account struct {
	ID              string     `json:"id" bson:"_id"`
	Role            Role       `json:"role" bson:"role"`
	Visible         bool       `json:"visible" bson:"visible"`
	Email           string     `json:"email,omitempty" bson:"email"`
	Profile         Profile    `json:"profile" bson:"profile"`
	UnlockedTargets []string   `json:"unlocked_targets" bson:"unlockedTargets"`
	UnlockCount     int64      `json:"unlock_count" bson:"unlockCount"`
	LastUnlockedAt  *time.Time `json:"last_unlocked_at,omitempty" bson:"lastUnlockedAt,omitempty"`
	CreatedAt       time.Time  `json:"created_at" bson:"createdAt"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updatedAt"`
}

// NewAccount returns a fresh visible account with an empty unlock set.
func NewAccount(id string, role Role, email string, now time.Time) *Account {
	return &Account{
		ID:              id,
		Role:            role,
		Visible:         true,
		Email:           strings.ToLower(strings.TrimSpace(email)),
		UnlockedTargets: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasUnlocked reports whether id is in the account's unlock set.
func (a *Account) HasUnlocked(id string) bool {
	for _, t := range a.UnlockedTargets {
		if t == id {
			return true
		}
	}
	return false
}

// AccountPatch is a partial update; nil fields are left untouched.
type AccountPatch struct {
	Role        *Role
	Visible     *bool
	Email       *string
	Name        *string
	PhotoURL    *string
	Bio         *string
	Nationality *string
	Starters    *[]string
	Interests   *[]string
	Socials     *Socials
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.Role == nil && p.Visible == nil && p.Email == nil && p.Name == nil &&
		p.PhotoURL == nil && p.Bio == nil && p.Nationality == nil &&
		p.Starters == nil && p.Interests == nil && p.Socials == nil
}

// Apply merges the non-nil fields of p into a.
func (p AccountPatch) Apply(a *Account) {
	if p.Role != nil {
		a.Role = *p.Role
	}
	if p.Visible != nil {
		a.Visible = *p.Visible
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.Name != nil {
		a.Profile.Name = *p.Name
	}
	if p.PhotoURL != nil {
		a.Profile.PhotoURL = *p.PhotoURL
	}
	if p.Bio != nil {
		a.Profile.Bio = *p.Bio
	}
	if p.Nationality != nil {
		a.Profile.Nationality = *p.Nationality
	}
	if p.Starters != nil {
		a.Profile.Starters = append([]string(nil), (*p.Starters)...)
	}
	if p.Interests != nil {
		a.Profile.Interests = append([]string(nil), (*p.Interests)...)
	}
	if p.Socials != nil {
		a.Profile.Socials = *p.Socials
	}
}
