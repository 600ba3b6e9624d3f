package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/LucaNori/arrranger/internal/controllers"
	"github.com/LucaNori/arrranger/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Entry is one recurring job: a cron-triggered backup of an instance or
// sync into a child instance. Entries are built by the configuration layer,
// which guarantees the cron spec parsed before handing it over.
type Entry struct {
	Instance    string
	Action      models.Action
	Parent      string // sync only
	Spec        string
	Filter      models.Filter // sync only
	WithHistory bool          // backup only
}

// JobName identifies the job for overlap accounting and logs
func (e Entry) JobName() string {
	return fmt.Sprintf("%s:%s", e.Action, e.Instance)
}

// Scheduler drives the recurring jobs. Ticks are evaluated at cron's
// one-minute resolution; each fired body runs on its own goroutine, and a
// tick that lands while the same job's body is still running is skipped,
// never queued.
type Scheduler struct {
	cron       *cron.Cron
	db         *models.Database
	backupCtrl *controllers.BackupController
	syncCtrl   *controllers.SyncController
	logger     *logrus.Logger

	mu      sync.Mutex
	guards  map[string]*sync.Mutex
	entries []Entry
	skips   atomic.Int64
}

// NewScheduler creates a new scheduler
func NewScheduler(db *models.Database, backupCtrl *controllers.BackupController, syncCtrl *controllers.SyncController, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		db:         db,
		backupCtrl: backupCtrl,
		syncCtrl:   syncCtrl,
		logger:     logger,
		guards:     make(map[string]*sync.Mutex),
	}
}

// Add registers one entry with the cron loop
func (s *Scheduler) Add(entry Entry) error {
	_, err := s.cron.AddFunc(entry.Spec, func() {
		s.runEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to add %s job for %s: %w", entry.Action, entry.Instance, err)
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"job":  entry.JobName(),
		"cron": entry.Spec,
	}).Info("Scheduled job")
	return nil
}

// Entries returns the registered entries
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Start starts the scheduling loop
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops tick evaluation. Job bodies already running are not cancelled;
// their run records seal when they finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// Skips reports how many invocations were overlap-skipped
func (s *Scheduler) Skips() int64 {
	return s.skips.Load()
}

// TriggerBackup runs a backup outside the cron loop, through the same
// overlap guard as the scheduled job for that instance.
func (s *Scheduler) TriggerBackup(instance string, withHistory bool) {
	s.runEntry(Entry{
		Instance:    instance,
		Action:      models.ActionBackup,
		WithHistory: withHistory,
	})
}

// TriggerSync runs the configured sync for a child instance outside the
// cron loop. It fails when no sync entry exists for the child.
func (s *Scheduler) TriggerSync(child string) error {
	var entry *Entry
	s.mu.Lock()
	for i := range s.entries {
		if s.entries[i].Action == models.ActionSync && s.entries[i].Instance == child {
			entry = &s.entries[i]
			break
		}
	}
	s.mu.Unlock()
	if entry == nil {
		return fmt.Errorf("no sync configured for instance %s", child)
	}
	s.runEntry(*entry)
	return nil
}

func (s *Scheduler) guardFor(job string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guards[job]
	if !ok {
		g = &sync.Mutex{}
		s.guards[job] = g
	}
	return g
}

// runEntry executes one job body under its overlap guard. A body still
// running from a previous tick causes this invocation to be skipped and
// logged; the next tick is evaluated fresh.
func (s *Scheduler) runEntry(entry Entry) {
	guard := s.guardFor(entry.JobName())
	if !guard.TryLock() {
		s.skips.Add(1)
		s.logger.WithFields(logrus.Fields{
			"job": entry.JobName(),
		}).Warn("overlap-skipped: previous invocation still running")
		return
	}
	defer guard.Unlock()

	ctx := context.Background()

	inst, err := s.db.Instance(entry.Instance)
	if err != nil {
		s.logger.WithField("job", entry.JobName()).WithError(err).Error("Unknown instance, skipping job")
		return
	}

	switch entry.Action {
	case models.ActionBackup:
		if _, err := s.backupCtrl.Backup(ctx, *inst, entry.WithHistory); err != nil {
			s.logger.WithField("job", entry.JobName()).WithError(err).Error("Backup job failed")
		}
	case models.ActionSync:
		parent, err := s.db.Instance(entry.Parent)
		if err != nil {
			s.logger.WithField("job", entry.JobName()).WithError(err).Error("Unknown parent instance, skipping job")
			return
		}
		if _, err := s.syncCtrl.Sync(ctx, *parent, *inst, entry.Filter); err != nil {
			s.logger.WithField("job", entry.JobName()).WithError(err).Error("Sync job failed")
		}
	default:
		s.logger.WithField("job", entry.JobName()).Error("Unsupported scheduled action")
	}
}
