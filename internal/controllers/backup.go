package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/sirupsen/logrus"
)

// BackupController pulls a remote catalog into the persistent store
type BackupController struct {
	db      *models.Database
	clients ClientFactory
	logger  *logrus.Logger
}

// NewBackupController creates a new backup controller
func NewBackupController(db *models.Database, clients ClientFactory, logger *logrus.Logger) *BackupController {
	return &BackupController{
		db:      db,
		clients: clients,
		logger:  logger,
	}
}

// Backup captures the instance's live catalog as the new snapshot and
// reports the diff against the prior one. A catalog fetch failure aborts
// before any store mutation: the previous snapshot stays authoritative.
// With withHistory set, release history is fetched for newly appeared items
// only, and skipped entirely when the catalog fetch failed.
func (c *BackupController) Backup(ctx context.Context, inst models.Instance, withHistory bool) (*models.RunRecord, error) {
	lock := c.db.Lock(inst.Name)
	lock.Lock()
	defer lock.Unlock()

	run := &models.RunRecord{
		Instance:  inst.Name,
		Action:    models.ActionBackup,
		StartedAt: time.Now(),
	}
	if err := c.db.AppendRunRecord(run); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"instance": inst.Name,
		"kind":     inst.Kind,
	}).Info("Starting backup")

	client := c.clients(inst)

	live, err := client.FetchCatalog(ctx)
	if err != nil {
		return c.fail(run, fmt.Errorf("fetch catalog: %w", err))
	}

	prior := map[int64]struct{}{}
	snap, err := c.db.LatestSnapshot(inst.Name)
	switch {
	case err == nil:
		prior = snap.ExternalIDs()
	case models.IsNotFound(err):
		// first backup of this instance
	default:
		return c.fail(run, err)
	}

	liveIDs := make(map[int64]struct{}, len(live))
	var addedItems []models.MediaItem
	for _, item := range live {
		liveIDs[item.ExternalID] = struct{}{}
		if _, ok := prior[item.ExternalID]; !ok {
			addedItems = append(addedItems, item)
		}
	}
	for id := range prior {
		if _, ok := liveIDs[id]; !ok {
			run.Removed++
		}
	}
	run.Added = len(addedItems)

	var errs []string
	if withHistory {
		histAdded := 0
		for _, item := range addedItems {
			records, err := client.FetchReleaseHistory(ctx, item.RemoteID, item.ExternalID)
			if err != nil {
				errs = append(errs, fmt.Sprintf("history for %q: %v", item.Title, err))
				continue
			}
			n, err := c.db.AppendReleaseRecords(inst.Name, records)
			if err != nil {
				return c.fail(run, err)
			}
			histAdded += n
		}
		c.logger.WithFields(logrus.Fields{
			"instance": inst.Name,
			"records":  histAdded,
		}).Debug("Release history backed up")
	}

	if _, err := c.db.ReplaceSnapshot(inst.Name, live); err != nil {
		return c.fail(run, err)
	}

	run.Error = joinErrors(errs)
	if err := c.db.SealRunRecord(run); err != nil {
		return run, err
	}

	c.logger.WithFields(logrus.Fields{
		"instance": inst.Name,
		"items":    len(live),
		"added":    run.Added,
		"removed":  run.Removed,
	}).Info("Backup completed")

	return run, nil
}

// fail seals the run with the fatal cause and propagates it
func (c *BackupController) fail(run *models.RunRecord, cause error) (*models.RunRecord, error) {
	run.Added = 0
	run.Removed = 0
	run.Error = cause.Error()
	if err := c.db.SealRunRecord(run); err != nil {
		c.logger.WithError(err).Error("Failed to seal run record")
	}
	c.logger.WithFields(logrus.Fields{
		"instance": run.Instance,
		"action":   run.Action,
	}).WithError(cause).Error("Backup failed")
	return run, cause
}
