// internal/core/domain/templates/templates.go
package templates

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"signal-desk-bot/internal/core/domain/trades"
)

// MinPoolSize is the smallest reply pool accepted per event.
const MinPoolSize = 10

// DM template keys
const (
	DMWelcome             = "welcome"
	DMTrialStarted        = "trial_started"
	DMTrialStartedWeekend = "trial_started_weekend"
	DMWarning24h          = "warning_24h"
	DMWarning3h           = "warning_3h"
	DMTrialExpired        = "trial_expired"
	DMFollowup3           = "followup_3"
	DMFollowup7           = "followup_7"
	DMFollowup14          = "followup_14"
	DMMondayActivation    = "monday_activation"
	DMTrialRejected       = "trial_rejected"
	DMEngagementDiscount  = "engagement_discount"
)

var requiredDMs = []string{
	DMWelcome, DMTrialStarted, DMTrialStartedWeekend, DMWarning24h, DMWarning3h,
	DMTrialExpired, DMFollowup3, DMFollowup7, DMFollowup14, DMMondayActivation,
	DMTrialRejected, DMEngagementDiscount,
}

type file struct {
	Replies struct {
		TP1       []string `yaml:"tp1"`
		TP2       []string `yaml:"tp2"`
		TP3       []string `yaml:"tp3"`
		SL        []string `yaml:"sl"`
		Breakeven []string `yaml:"breakeven"`
	} `yaml:"replies"`
	EntryHit   string            `yaml:"entry_hit"`
	PrivateBot string            `yaml:"private_bot"`
	DMs        map[string]string `yaml:"dms"`
}

// Set holds every human-written text the service sends.
type Set struct {
	replies    map[trades.Level][]string
	entryHit   string
	privateBot string
	dms        map[string]string
	pick       func(n int) int
}

// Load reads and validates a templates YAML file.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates.Load: %w", err)
	}
	return Parse(raw)
}

// Parse validates templates from YAML bytes.
func Parse(raw []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("templates.Parse: %w", err)
	}

	s := &Set{
		replies: map[trades.Level][]string{
			trades.LevelTP1:       f.Replies.TP1,
			trades.LevelTP2:       f.Replies.TP2,
			trades.LevelTP3:       f.Replies.TP3,
			trades.LevelSL:        f.Replies.SL,
			trades.LevelBreakeven: f.Replies.Breakeven,
		},
		entryHit:   f.EntryHit,
		privateBot: f.PrivateBot,
		dms:        f.DMs,
		pick:       rand.IntN,
	}
	if s.entryHit == "" {
		s.entryHit = "@everyone our {side} limit has been hit"
	}
	if s.privateBot == "" {
		s.privateBot = "This is a private bot."
	}

	var problems []string
	for lvl, pool := range s.replies {
		if len(pool) < MinPoolSize {
			problems = append(problems, fmt.Sprintf("replies.%s has %d entries, need %d", strings.ToLower(string(lvl)), len(pool), MinPoolSize))
		}
	}
	for _, key := range requiredDMs {
		if strings.TrimSpace(s.dms[key]) == "" {
			problems = append(problems, "dms."+key+" is missing")
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("templates.Parse: %s", strings.Join(problems, "; "))
	}
	return s, nil
}

// WithPicker replaces the random source. Used by tests.
func (s *Set) WithPicker(pick func(n int) int) *Set {
	c := *s
	c.pick = pick
	return &c
}

// Reply returns a random reply for a level event.
func (s *Set) Reply(level trades.Level) string {
	pool := s.replies[level]
	if len(pool) == 0 {
		return string(level) + " hit"
	}
	return pool[s.pick(len(pool))]
}

// EntryHit is the limit-fill announcement.
func (s *Set) EntryHit(action trades.Action) string {
	return strings.ReplaceAll(s.entryHit, "{side}", strings.ToLower(string(action)))
}

// PrivateBot is the reply non-owners get in private chats.
func (s *Set) PrivateBot() string { return s.privateBot }

// DM renders a direct-message template. vars fill {name} placeholders.
func (s *Set) DM(key string, vars map[string]string) string {
	text := s.dms[key]
	if len(vars) == 0 {
		return text
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// DMKeys lists the DM templates in a stable order (for previews).
func (s *Set) DMKeys() []string {
	return append([]string(nil), requiredDMs...)
}
