package maintenance

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/quality"
)

// PreservePolicy decides which accounts survive cleanup_all_except_preserved.
type PreservePolicy struct {
	// Emails are matched case-insensitively.
	Emails []string `yaml:"emails" json:"emails"`
	// MinBioLength exempts hosts with a name and a bio of at least this many characters.
	MinBioLength int  `yaml:"min_bio_length" json:"min_bio_length"`
	KeepAdmins   bool `yaml:"keep_admins" json:"keep_admins"`
}

func DefaultPreservePolicy() PreservePolicy {
	return PreservePolicy{MinBioLength: 50, KeepAdmins: true}
}

// LoadPreservePolicy reads a YAML policy file. Keys missing from the file
// keep their default values.
func LoadPreservePolicy(path string) (PreservePolicy, error) {
	p := DefaultPreservePolicy()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse policy %s: %w", path, err)
	}
	p.Emails = normalizeEmails(p.Emails)
	return p, nil
}

// WithEmails returns a copy of p with extra preserved emails added.
func (p PreservePolicy) WithEmails(extra ...string) PreservePolicy {
	all := append(append([]string(nil), p.Emails...), extra...)
	p.Emails = normalizeEmails(all)
	return p
}

func normalizeEmails(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Preserves reports whether a must be kept.
func (p PreservePolicy) Preserves(a *entity.Account) bool {
	if p.KeepAdmins && a.Role == entity.RoleAdmin {
		return true
	}
	email := strings.ToLower(strings.TrimSpace(a.Email))
	if email != "" {
		for _, e := range p.Emails {
			if strings.EqualFold(e, email) {
				return true
			}
		}
	}
	return quality.IsSubstantialHost(a, p.MinBioLength)
}
