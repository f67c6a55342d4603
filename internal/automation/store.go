package automation

import (
	"log/slog"
	"sync"
	"time"

	"artemis/internal/utils"

	"github.com/google/uuid"
)

// StoreSnapshot is the persisted form of a Store
type StoreSnapshot struct {
	Rules       []Rule                `json:"rules"`
	TrustLevels map[string]TrustLevel `json:"trustLevels"`
}

// Store owns the rule collection, per action type trust levels and the draft
type Store struct {
	mu     sync.RWMutex
	rules  []Rule
	index  map[string]int
	trust  map[string]TrustLevel
	draft  *Draft
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
	feed   utils.Feed
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock replaces time.Now
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the uuid generator
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		index:  make(map[string]int),
		trust:  make(map[string]TrustLevel),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to run after every mutation
func (s *Store) Subscribe(fn func()) func() {
	return s.feed.Subscribe(fn)
}

// AddRule stores a new rule and returns its id
func (s *Store) AddRule(in RuleInput) string {
	s.mu.Lock()
	now := s.now()
	id := s.newID()
	for _, taken := s.index[id]; taken; _, taken = s.index[id] {
		id = s.newID()
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	rule := Rule{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Trigger:     in.Trigger,
		Conditions:  in.Conditions,
		Actions:     append([]Action(nil), in.Actions...),
		Location:    in.Location,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
		RiskLevel:   orDefault(in.RiskLevel, RiskLow),
		TrustLevel:  orDefault(in.TrustLevel, TrustAskAlways),
		CreatedBy:   orDefault(in.CreatedBy, CreatedByManual),
		IsPython:    in.IsPython,
		PythonCode:  in.PythonCode,
	}
	rule.RequiresConfirmation = ConfirmationRequired(rule.TrustLevel)

	s.index[id] = len(s.rules)
	s.rules = append(s.rules, rule)
	s.mu.Unlock()

	s.logger.Debug("Rule added", "rule_id", id, "name", in.Name)
	s.feed.Publish()
	return id
}

// UpdateRule merges patch into the rule. It reports false when id is unknown.
func (s *Store) UpdateRule(id string, patch RulePatch) bool {
	return s.mutate(id, func(r *Rule) {
		if patch.Name != nil {
			r.Name = *patch.Name
		}
		if patch.Description != nil {
			r.Description = *patch.Description
		}
		if patch.Trigger != nil {
			r.Trigger = patch.Trigger
		}
		if patch.Conditions != nil {
			r.Conditions = append([]Condition(nil), (*patch.Conditions)...)
		}
		if patch.Actions != nil {
			r.Actions = append([]Action(nil), (*patch.Actions)...)
		}
		if patch.Location != nil {
			r.Location = *patch.Location
		}
		if patch.Enabled != nil {
			r.Enabled = *patch.Enabled
		}
		if patch.RiskLevel != nil {
			r.RiskLevel = *patch.RiskLevel
		}
		if patch.TrustLevel != nil {
			r.TrustLevel = *patch.TrustLevel
			r.RequiresConfirmation = ConfirmationRequired(r.TrustLevel)
		}
		if patch.IsPython != nil {
			r.IsPython = *patch.IsPython
		}
		if patch.PythonCode != nil {
			r.PythonCode = *patch.PythonCode
		}
	})
}

// DeleteRule removes the rule. It reports false when id is unknown.
func (s *Store) DeleteRule(id string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	s.reindex()
	s.mu.Unlock()

	s.logger.Debug("Rule deleted", "rule_id", id)
	s.feed.Publish()
	return true
}

// ToggleRule flips Enabled
func (s *Store) ToggleRule(id string) bool {
	return s.mutate(id, func(r *Rule) { r.Enabled = !r.Enabled })
}

// EnableRule sets Enabled
func (s *Store) EnableRule(id string) bool {
	return s.mutate(id, func(r *Rule) { r.Enabled = true })
}

// DisableRule clears Enabled
func (s *Store) DisableRule(id string) bool {
	return s.mutate(id, func(r *Rule) { r.Enabled = false })
}

// SetRuleTrust sets the trust level and derives RequiresConfirmation
func (s *Store) SetRuleTrust(id string, trust TrustLevel) bool {
	if !ValidTrustLevel(trust) {
		return false
	}
	return s.mutate(id, func(r *Rule) {
		r.TrustLevel = trust
		r.RequiresConfirmation = ConfirmationRequired(trust)
	})
}

// RecordTrigger notes that the rule fired
func (s *Store) RecordTrigger(id string) bool {
	return s.mutate(id, func(r *Rule) {
		t := s.now()
		r.LastTriggered = &t
		r.TriggerCount++
	})
}

// Rule returns a copy of the rule with the given id
func (s *Store) Rule(id string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Rule{}, false
	}
	return s.rules[i].Clone(), true
}

// Rules returns copies of all rules in insertion order
func (s *Store) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Clone()
	}
	return out
}

// EnabledRules returns copies of the enabled rules
func (s *Store) EnabledRules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Rule
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r.Clone())
		}
	}
	return out
}

// SetActionTrust sets the trust level for an action type
func (s *Store) SetActionTrust(actionType string, trust TrustLevel) bool {
	if actionType == "" || !ValidTrustLevel(trust) {
		return false
	}
	s.mu.Lock()
	s.trust[actionType] = trust
	s.mu.Unlock()
	s.feed.Publish()
	return true
}

// ActionTrust returns the trust level for an action type, ask_always when unset
func (s *Store) ActionTrust(actionType string) TrustLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.trust[actionType]; ok {
		return t
	}
	return TrustAskAlways
}

// TrustLevels returns a copy of the trust map
func (s *Store) TrustLevels() map[string]TrustLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]TrustLevel, len(s.trust))
	for k, v := range s.trust {
		out[k] = v
	}
	return out
}

// SetDraft replaces the draft
func (s *Store) SetDraft(d Draft) {
	s.mu.Lock()
	s.draft = &d
	s.mu.Unlock()
	s.feed.Publish()
}

// UpdateDraft shallow merges patch into the draft, starting one if needed
func (s *Store) UpdateDraft(patch Draft) {
	s.mu.Lock()
	var base Draft
	if s.draft != nil {
		base = *s.draft
	}
	merged := base.Merge(patch)
	s.draft = &merged
	s.mu.Unlock()
	s.feed.Publish()
}

// ClearDraft drops the draft
func (s *Store) ClearDraft() {
	s.mu.Lock()
	s.draft = nil
	s.mu.Unlock()
	s.feed.Publish()
}

// Draft returns the current draft
func (s *Store) Draft() (Draft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.draft == nil {
		return Draft{}, false
	}
	return *s.draft, true
}

// PromoteDraft builds the draft into a rule, stores it and clears the draft
func (s *Store) PromoteDraft() (string, error) {
	d, ok := s.Draft()
	if !ok {
		d = Draft{}
	}
	in, err := d.Build()
	if err != nil {
		return "", err
	}
	id := s.AddRule(in)
	s.ClearDraft()
	return id, nil
}

// Snapshot returns the persisted form of the store
func (s *Store) Snapshot() StoreSnapshot {
	return StoreSnapshot{Rules: s.Rules(), TrustLevels: s.TrustLevels()}
}

// Restore replaces the store contents with a snapshot
func (s *Store) Restore(snap StoreSnapshot) {
	s.mu.Lock()
	s.rules = make([]Rule, 0, len(snap.Rules))
	seen := make(map[string]bool, len(snap.Rules))
	for _, r := range snap.Rules {
		if r.ID == "" || seen[r.ID] {
			s.logger.Warn("Skipping restored rule with missing or duplicate id", "rule_id", r.ID)
			continue
		}
		seen[r.ID] = true
		r.RequiresConfirmation = ConfirmationRequired(r.TrustLevel)
		if r.UpdatedAt.Before(r.CreatedAt) {
			r.UpdatedAt = r.CreatedAt
		}
		s.rules = append(s.rules, r.Clone())
	}
	s.reindex()
	s.trust = make(map[string]TrustLevel, len(snap.TrustLevels))
	for k, v := range snap.TrustLevels {
		if ValidTrustLevel(v) {
			s.trust[k] = v
		}
	}
	restored := len(s.rules)
	s.mu.Unlock()
	s.logger.Info("Automation store restored", "rules", restored, "trust_levels", len(snap.TrustLevels))
}

// mutate applies fn to the rule and bumps UpdatedAt
func (s *Store) mutate(id string, fn func(*Rule)) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	r := &s.rules[i]
	fn(r)
	if now := s.now(); now.After(r.UpdatedAt) {
		r.UpdatedAt = now
	}
	s.mu.Unlock()
	s.feed.Publish()
	return true
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.rules))
	for i, r := range s.rules {
		s.index[r.ID] = i
	}
}

func orDefault[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}
