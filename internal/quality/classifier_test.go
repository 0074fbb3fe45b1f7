package quality

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
)

func host(p entity.Profile) *entity.Account {
	return &entity.Account{ID: "h", Role: entity.RoleHost, Profile: p}
}

func TestIsEmptyHost(t *testing.T) {
	cases := map[string]struct {
		profile entity.Profile
		want    bool
	}{
		"nothing":            {entity.Profile{}, true},
		"whitespace only":    {entity.Profile{Name: "  ", Bio: "\t", Starters: []string{" ", ""}}, true},
		"only interests":     {entity.Profile{Interests: []string{"x"}}, false},
		"only photo":         {entity.Profile{PhotoURL: "https://cdn/p.jpg"}, false},
		"only nationality":   {entity.Profile{Nationality: "PT"}, false},
		"only a starter":     {entity.Profile{Starters: []string{"", "Hi"}}, false},
		"only whatsapp":      {entity.Profile{Socials: entity.Socials{WhatsApp: "+351"}}, false},
		"only linkedin":      {entity.Profile{Socials: entity.Socials{LinkedIn: "ana"}}, false},
		"blank social":       {entity.Profile{Socials: entity.Socials{Instagram: " "}}, true},
		"name and bio":       {entity.Profile{Name: "Ana", Bio: "hello"}, false},
		"empty interest tag": {entity.Profile{Interests: []string{""}}, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsEmptyHost(host(tc.profile)))
		})
	}
}

func TestIsEmptyHost_OnlyHosts(t *testing.T) {
	assert.False(t, IsEmptyHost(&entity.Account{Role: entity.RoleParticipant}))
	assert.False(t, IsEmptyHost(&entity.Account{Role: entity.RoleAdmin}))
	assert.False(t, IsEmptyHost(nil))
}

func TestIsInactiveParticipant(t *testing.T) {
	assert.True(t, IsInactiveParticipant(&entity.Account{Role: entity.RoleParticipant}))
	assert.True(t, IsInactiveParticipant(&entity.Account{Role: entity.RoleParticipant, UnlockedTargets: []string{}}))
	assert.False(t, IsInactiveParticipant(&entity.Account{Role: entity.RoleParticipant, UnlockedTargets: []string{"h1"}}))
	assert.False(t, IsInactiveParticipant(&entity.Account{Role: entity.RoleHost}))
	assert.False(t, IsInactiveParticipant(nil))
}

func TestIsSubstantialHost(t *testing.T) {
	bio50 := strings.Repeat("a", 50)
	assert.True(t, IsSubstantialHost(host(entity.Profile{Name: "Ana", Bio: bio50}), 50))
	assert.False(t, IsSubstantialHost(host(entity.Profile{Name: "Ana", Bio: bio50[:49]}), 50))
	assert.False(t, IsSubstantialHost(host(entity.Profile{Name: " ", Bio: bio50}), 50))
	// characters, not bytes
	assert.True(t, IsSubstantialHost(host(entity.Profile{Name: "Ana", Bio: strings.Repeat("é", 50)}), 50))
	assert.False(t, IsSubstantialHost(&entity.Account{Role: entity.RoleParticipant, Profile: entity.Profile{Name: "Ana", Bio: bio50}}, 50))
}

func TestProfileCompleteness(t *testing.T) {
	assert.Equal(t, Empty, ProfileCompleteness(entity.Profile{Interests: []string{"x"}}))
	assert.Equal(t, Partial, ProfileCompleteness(entity.Profile{Name: "Ana"}))
	assert.Equal(t, Complete, ProfileCompleteness(entity.Profile{Name: "Ana", Bio: "b", PhotoURL: "p"}))
	assert.Equal(t, "partial", Partial.String())
}

func TestTally(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	tally := NewTally(now)
	add := func(role entity.Role, created time.Time, mutate func(*entity.Account)) {
		a := entity.NewAccount("x", role, "", created)
		if mutate != nil {
			mutate(a)
		}
		tally.Add(a)
	}

	add(entity.RoleParticipant, now, nil)
	add(entity.RoleParticipant, now.AddDate(0, 0, -3), func(a *entity.Account) {
		a.Profile.Name = "Zoe"
		a.UnlockedTargets = []string{"h1"}
	})
	add(entity.RoleHost, now.AddDate(0, 0, -20), func(a *entity.Account) {
		a.Profile = entity.Profile{Name: "Ana", Bio: "b", PhotoURL: "p", Socials: entity.Socials{Instagram: "ana"}}
		a.UnlockCount = 2
	})
	add(entity.RoleHost, now.AddDate(0, -2, 0), func(a *entity.Account) { a.Visible = false })
	add(entity.RoleHost, now.AddDate(-1, 0, 0), func(a *entity.Account) { a.Profile.Interests = []string{"x"} })
	add(entity.RoleAdmin, time.Time{}, nil)

	r := tally.Report()
	assert.Equal(t, Overview{Total: 6, Participants: 2, Hosts: 3, Admins: 1}, r.Overview)
	assert.Equal(t, ParticipantStats{Total: 2, WithData: 1, Inactive: 1, Visible: 2}, r.Participants)
	assert.Equal(t, HostStats{Total: 3, Complete: 1, Partial: 1, Empty: 1, Visible: 2, Unlocks: 2}, r.Hosts)
	assert.Equal(t, DataQuality{WithNames: 2, WithBios: 1, WithPhotos: 1, WithSocials: 1}, r.DataQuality)
	assert.Equal(t, RecentActivity{CreatedToday: 1, CreatedThisWeek: 2, CreatedThisMonth: 3}, r.RecentActivity)
}
