package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"artemis/internal/automation"

	"github.com/robfig/cron/v3"
)

type job struct {
	entryID cron.EntryID
	spec    string
	oneShot bool
}

// Scheduler registers one cron entry per enabled time-trigger rule and
// records an occurrence each time it fires. It never runs actions.
type Scheduler struct {
	cron   *cron.Cron
	store  *automation.Store
	logger *slog.Logger

	jobMapMux sync.Mutex
	jobMap    map[string]job
	unsub     func()
}

// NewScheduler creates a scheduler evaluating cron specs in loc
func NewScheduler(store *automation.Store, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		store:  store,
		logger: logger.With("component", "scheduler"),
		jobMap: make(map[string]job),
	}
}

// Start syncs the current rules, follows store changes and starts cron
func (s *Scheduler) Start() {
	s.Sync()
	s.unsub = s.store.Subscribe(s.Sync)
	s.cron.Start()
	s.logger.Info("Cron scheduler started", "jobs", s.JobCount())
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	if s.unsub != nil {
		s.unsub()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Cron scheduler stopped")
}

// Sync brings the cron entries in line with the enabled time-trigger rules
func (s *Scheduler) Sync() {
	desired := make(map[string]job)
	for _, rule := range s.store.EnabledRules() {
		tt, ok := rule.Trigger.(automation.TimeTrigger)
		if !ok {
			continue
		}
		spec, err := automation.CronSpec(tt)
		if err != nil {
			s.logger.Warn("Skipping rule with unschedulable time", "rule_id", rule.ID, "time", tt.Time, "error", err)
			continue
		}
		desired[rule.ID] = job{spec: spec, oneShot: automation.IsOneShot(tt)}
	}

	s.jobMapMux.Lock()
	defer s.jobMapMux.Unlock()

	for id, cur := range s.jobMap {
		want, ok := desired[id]
		if ok && want.spec == cur.spec && want.oneShot == cur.oneShot {
			delete(desired, id)
			continue
		}
		s.cron.Remove(cur.entryID)
		delete(s.jobMap, id)
		s.logger.Debug("Removed schedule", "rule_id", id, "cron", cur.spec)
	}

	for id, want := range desired {
		ruleID, oneShot := id, want.oneShot
		entryID, err := s.cron.AddFunc(want.spec, func() { s.fire(ruleID, oneShot) })
		if err != nil {
			s.logger.Error("Failed to schedule rule", "rule_id", id, "cron", want.spec, "error", err)
			continue
		}
		want.entryID = entryID
		s.jobMap[id] = want
		s.logger.Debug("Scheduled rule", "rule_id", id, "cron", want.spec, "entry_id", entryID)
	}
}

func (s *Scheduler) fire(ruleID string, oneShot bool) {
	if !s.store.RecordTrigger(ruleID) {
		return
	}
	s.logger.Info("Time trigger fired", "rule_id", ruleID)
	if oneShot {
		// Disabling publishes a change, and the resync drops the entry.
		s.store.DisableRule(ruleID)
	}
}

// JobCount returns the number of registered cron entries
func (s *Scheduler) JobCount() int {
	s.jobMapMux.Lock()
	defer s.jobMapMux.Unlock()
	return len(s.jobMap)
}

// NextRun returns when the rule's entry fires next, if it is registered
// and cron is running.
func (s *Scheduler) NextRun(ruleID string) (time.Time, bool) {
	s.jobMapMux.Lock()
	j, ok := s.jobMap[ruleID]
	s.jobMapMux.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(j.entryID).Next
	return next, !next.IsZero()
}
