// Package visibility decides how much of a host profile a viewer may see.
package visibility

import "github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"

// Decision is the disclosure level for one (viewer, target) pair.
type Decision int

const (
	Hidden Decision = iota
	Locked
	Full
)

func (d Decision) String() string {
	switch d {
	case Hidden:
		return "HIDDEN"
	case Locked:
		return "LOCKED"
	case Full:
		return "FULL"
	}
	return "UNKNOWN"
}

// UnlockSet is the viewer's set of unlocked target ids.
type UnlockSet map[string]struct{}

// NewUnlockSet builds a set from a list of ids.
func NewUnlockSet(ids []string) UnlockSet {
	s := make(UnlockSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has is safe on a nil set.
func (s UnlockSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Decide applies the rules in order:
//  1. only hosts are discoverable;
//  2. a hidden host is invisible to everyone but other hosts;
//  3. hosts see every host in full without a recorded unlock;
//  4. an unlocked target is shown in full;
//  5. anything else is locked.
func Decide(viewerRole entity.Role, unlocked UnlockSet, targetID string, targetRole entity.Role, targetVisible bool) Decision {
	if targetRole != entity.RoleHost {
		return Hidden
	}
	switch viewerRole {
	case entity.RoleHost:
		return Full
	case entity.RoleParticipant, entity.RoleAdmin:
	default:
		// Unknown roles get participant treatment.
	}
	if !targetVisible {
		return Hidden
	}
	if unlocked.Has(targetID) {
		return Full
	}
	return Locked
}
