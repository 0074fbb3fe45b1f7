package quality

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
)

type Overview struct {
	Total        int `json:"total" yaml:"total"`
	Participants int `json:"participants" yaml:"participants"`
	Hosts        int `json:"hosts" yaml:"hosts"`
	Admins       int `json:"admins" yaml:"admins"`
}

type ParticipantStats struct {
	Total    int `json:"total" yaml:"total"`
	WithData int `json:"with_data" yaml:"with_data"`
	Inactive int `json:"inactive" yaml:"inactive"`
	Visible  int `json:"visible" yaml:"visible"`
}

type HostStats struct {
	Total    int   `json:"total" yaml:"total"`
	Complete int   `json:"complete" yaml:"complete"`
	Partial  int   `json:"partial" yaml:"partial"`
	Empty    int   `json:"empty" yaml:"empty"`
	Visible  int   `json:"visible" yaml:"visible"`
	Unlocks  int64 `json:"unlocks" yaml:"unlocks"`
}

type DataQuality struct {
	WithNames   int `json:"with_names" yaml:"with_names"`
	WithBios    int `json:"with_bios" yaml:"with_bios"`
	WithPhotos  int `json:"with_photos" yaml:"with_photos"`
	WithSocials int `json:"with_socials" yaml:"with_socials"`
}

type RecentActivity struct {
	CreatedToday     int `json:"created_today" yaml:"created_today"`
	CreatedThisWeek  int `json:"created_this_week" yaml:"created_this_week"`
	CreatedThisMonth int `json:"created_this_month" yaml:"created_this_month"`
}

// Report is the aggregate produced by a Tally.
type Report struct {
	Overview       Overview         `json:"overview" yaml:"overview"`
	Participants   ParticipantStats `json:"participants" yaml:"participants"`
	Hosts          HostStats        `json:"hosts" yaml:"hosts"`
	DataQuality    DataQuality      `json:"data_quality" yaml:"data_quality"`
	RecentActivity RecentActivity   `json:"recent_activity" yaml:"recent_activity"`
}

// Tally accumulates a Report one account at a time. Week and month windows
// are 7 and 30 days back from the start of the current day.
type Tally struct {
	today, weekAgo, monthAgo time.Time
	r                        Report
}

func NewTally(now time.Time) *Tally {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return &Tally{today: today, weekAgo: today.AddDate(0, 0, -7), monthAgo: today.AddDate(0, 0, -30)}
}

func (t *Tally) Add(a *entity.Account) {
	r := &t.r
	p := a.Profile
	r.Overview.Total++

	if filled(p.Name) {
		r.DataQuality.WithNames++
	}
	if filled(p.Bio) {
		r.DataQuality.WithBios++
	}
	if filled(p.PhotoURL) {
		r.DataQuality.WithPhotos++
	}
	if HasSocials(p.Socials) {
		r.DataQuality.WithSocials++
	}

	switch a.Role {
	case entity.RoleParticipant:
		r.Overview.Participants++
		r.Participants.Total++
		if a.Visible {
			r.Participants.Visible++
		}
		if ProfileCompleteness(p) != Empty {
			r.Participants.WithData++
		}
		if IsInactiveParticipant(a) {
			r.Participants.Inactive++
		}
	case entity.RoleHost:
		r.Overview.Hosts++
		r.Hosts.Total++
		r.Hosts.Unlocks += a.UnlockCount
		if a.Visible {
			r.Hosts.Visible++
		}
		switch {
		case IsEmptyHost(a):
			r.Hosts.Empty++
		case ProfileCompleteness(p) == Complete:
			r.Hosts.Complete++
		default:
			r.Hosts.Partial++
		}
	case entity.RoleAdmin:
		r.Overview.Admins++
	}

	if c := a.CreatedAt; !c.IsZero() {
		if !c.Before(t.today) {
			r.RecentActivity.CreatedToday++
		}
		if !c.Before(t.weekAgo) {
			r.RecentActivity.CreatedThisWeek++
		}
		if !c.Before(t.monthAgo) {
			r.RecentActivity.CreatedThisMonth++
		}
	}
}

func (t *Tally) Report() Report { return t.r }
