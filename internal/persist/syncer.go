package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"artemis/internal/automation"
	"artemis/internal/settings"
)

// Syncer restores the automation store and settings at startup and writes
// them back after changes.
type Syncer struct {
	store    Store
	rules    *automation.Store
	settings *settings.Service
	logger   *slog.Logger
	debounce time.Duration

	mu         sync.Mutex
	pending    map[string]bool
	notify     chan struct{}
	unreadable []json.RawMessage
}

// BackupSuffix names the copy kept of a partition that failed to load
const BackupSuffix = ".unreadable"

func NewSyncer(store Store, rules *automation.Store, svc *settings.Service, debounce time.Duration, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:    store,
		rules:    rules,
		settings: svc,
		logger:   logger.With("component", "persist"),
		debounce: debounce,
		pending:  make(map[string]bool),
		notify:   make(chan struct{}, 1),
	}
}

// Restore loads every partition. Missing partitions keep defaults. A corrupt
// partition is copied aside under BackupSuffix and skipped. Rules this build
// cannot decode are kept as stored and written back on every save.
func (s *Syncer) Restore(ctx context.Context) error {
	var snap automation.StoreSnapshot
	restored := false

	rules, err := s.loadRules(ctx)
	if err == nil {
		snap.Rules = rules
		restored = true
	} else if err := s.tolerate(ctx, PartitionRules, err); err != nil {
		return err
	}
	err = LoadInto(ctx, s.store, PartitionTrustLevels, &snap.TrustLevels)
	if err == nil {
		restored = true
	} else if err := s.tolerate(ctx, PartitionTrustLevels, err); err != nil {
		return err
	}
	if restored {
		s.rules.Restore(snap)
	}

	if s.settings != nil {
		var doc json.RawMessage
		err := LoadInto(ctx, s.store, PartitionSettings, &doc)
		if err == nil {
			merged, mergeErr := settings.Defaults().Merge(doc)
			if mergeErr == nil {
				mergeErr = s.settings.Set(merged)
			}
			if mergeErr != nil {
				s.logger.Warn("Discarding stored settings", "error", mergeErr)
				if err := s.backup(ctx, PartitionSettings); err != nil {
					return err
				}
			}
		} else if err := s.tolerate(ctx, PartitionSettings, err); err != nil {
			return err
		}
	}

	// Restoring fires change feeds; nothing new needs writing.
	s.mu.Lock()
	s.pending = make(map[string]bool)
	s.mu.Unlock()
	return nil
}

func (s *Syncer) loadRules(ctx context.Context) ([]automation.Rule, error) {
	var docs []json.RawMessage
	if err := LoadInto(ctx, s.store, PartitionRules, &docs); err != nil {
		return nil, err
	}
	rules := make([]automation.Rule, 0, len(docs))
	var kept []json.RawMessage
	for i, doc := range docs {
		var r automation.Rule
		if err := json.Unmarshal(doc, &r); err != nil {
			s.logger.Warn("Keeping unreadable rule as stored", "index", i, "error", err)
			kept = append(kept, doc)
			continue
		}
		rules = append(rules, r)
	}
	s.mu.Lock()
	s.unreadable = kept
	s.mu.Unlock()
	return rules, nil
}

func (s *Syncer) tolerate(ctx context.Context, partition string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("restore %s: %w", partition, err)
	}
	s.logger.Warn("Skipping unreadable partition", "partition", partition, "error", err)
	return s.backup(ctx, partition)
}

// backup copies a partition aside before the next save replaces it
func (s *Syncer) backup(ctx context.Context, partition string) error {
	data, err := s.store.Load(ctx, partition)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("back up %s: %w", partition, err)
	}
	if err := s.store.Save(ctx, partition+BackupSuffix, data); err != nil {
		return fmt.Errorf("back up %s: %w", partition, err)
	}
	return nil
}

// Flush writes every partition now
func (s *Syncer) Flush(ctx context.Context) error {
	return s.save(ctx, map[string]bool{
		PartitionRules:       true,
		PartitionTrustLevels: true,
		PartitionSettings:    s.settings != nil,
	})
}

// Run watches for changes and writes dirty partitions after the debounce
// window. Pending writes are flushed when ctx ends.
func (s *Syncer) Run(ctx context.Context) {
	unsubRules := s.rules.Subscribe(func() {
		s.mark(PartitionRules, PartitionTrustLevels)
	})
	defer unsubRules()
	if s.settings != nil {
		unsubSettings := s.settings.Subscribe(func() { s.mark(PartitionSettings) })
		defer unsubSettings()
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.flushPending(flushCtx)
			cancel()
			return
		case <-s.notify:
			if timer == nil {
				timer = time.NewTimer(s.debounce)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			s.flushPending(ctx)
		}
	}
}

func (s *Syncer) mark(partitions ...string) {
	s.mu.Lock()
	for _, p := range partitions {
		s.pending[p] = true
	}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Syncer) flushPending(ctx context.Context) {
	s.mu.Lock()
	dirty := s.pending
	s.pending = make(map[string]bool)
	s.mu.Unlock()
	if len(dirty) == 0 {
		return
	}
	if err := s.save(ctx, dirty); err != nil {
		s.logger.Error("Failed to persist state", "error", err)
	}
}

func (s *Syncer) save(ctx context.Context, dirty map[string]bool) error {
	var errs []error
	if dirty[PartitionRules] {
		docs, err := s.ruleDocs()
		if err == nil {
			err = SaveFrom(ctx, s.store, PartitionRules, docs)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if dirty[PartitionTrustLevels] {
		if err := SaveFrom(ctx, s.store, PartitionTrustLevels, s.rules.TrustLevels()); err != nil {
			errs = append(errs, err)
		}
	}
	if dirty[PartitionSettings] && s.settings != nil {
		if err := SaveFrom(ctx, s.store, PartitionSettings, s.settings.Get()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) ruleDocs() ([]json.RawMessage, error) {
	rules := s.rules.Rules()
	s.mu.Lock()
	kept := s.unreadable
	s.mu.Unlock()
	docs := make([]json.RawMessage, 0, len(rules)+len(kept))
	for _, r := range rules {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", PartitionRules, err)
		}
		docs = append(docs, data)
	}
	return append(docs, kept...), nil
}
