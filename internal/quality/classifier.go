// Package quality classifies accounts for maintenance. Every predicate leans
// towards keeping data: a single filled field makes a host non-empty.
package quality

import (
	"strings"
	"unicode/utf8"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
)

func filled(s string) bool { return strings.TrimSpace(s) != "" }

func anyFilled(list []string) bool {
	for _, s := range list {
		if filled(s) {
			return true
		}
	}
	return false
}

// HasSocials reports whether any social handle is set.
func HasSocials(s entity.Socials) bool {
	return filled(s.Instagram) || filled(s.LinkedIn) || filled(s.WhatsApp)
}

// HasContent reports whether any profile field carries data.
func HasContent(p entity.Profile) bool {
	return filled(p.Name) || filled(p.Bio) || filled(p.PhotoURL) || filled(p.Nationality) ||
		anyFilled(p.Starters) || anyFilled(p.Interests) || HasSocials(p.Socials)
}

// IsEmptyHost is true for a host without a single non-blank profile field.
func IsEmptyHost(a *entity.Account) bool {
	if a == nil || a.Role != entity.RoleHost {
		return false
	}
	return !HasContent(a.Profile)
}

// IsInactiveParticipant is true for a participant that never unlocked anyone.
func IsInactiveParticipant(a *entity.Account) bool {
	if a == nil || a.Role != entity.RoleParticipant {
		return false
	}
	return len(a.UnlockedTargets) == 0
}

// IsSubstantialHost is true for a host with a name and a bio of at least
// minBio characters.
func IsSubstantialHost(a *entity.Account, minBio int) bool {
	if a == nil || a.Role != entity.RoleHost {
		return false
	}
	return filled(a.Profile.Name) && utf8.RuneCountInString(a.Profile.Bio) >= minBio
}

// Completeness grades the name/bio/photo triple.
type Completeness int

const (
	Empty Completeness = iota
	Partial
	Complete
)

func (c Completeness) String() string {
	switch c {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	}
	return "empty"
}

func ProfileCompleteness(p entity.Profile) Completeness {
	n := 0
	for _, s := range []string{p.Name, p.Bio, p.PhotoURL} {
		if filled(s) {
			n++
		}
	}
	switch n {
	case 0:
		return Empty
	case 3:
		return Complete
	}
	return Partial
}
