package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/LucaNori/arrranger/internal/services/arr"
	"github.com/sirupsen/logrus"
)

// RestoreController replays stored state back onto a live instance
type RestoreController struct {
	db      *models.Database
	clients ClientFactory
	logger  *logrus.Logger
}

// NewRestoreController creates a new restore controller
func NewRestoreController(db *models.Database, clients ClientFactory, logger *logrus.Logger) *RestoreController {
	return &RestoreController{
		db:      db,
		clients: clients,
		logger:  logger,
	}
}

// RestoreSnapshot replays the latest stored snapshot of backupName as
// additions against the target instance, best-effort per item. Items the
// target already holds are skipped, and every restored item carries the
// provenance tag so a later sync can manage it.
func (c *RestoreController) RestoreSnapshot(ctx context.Context, backupName string, target models.Instance, filter models.Filter) (*models.RunRecord, error) {
	lock := c.db.Lock(target.Name)
	lock.Lock()
	defer lock.Unlock()

	run := &models.RunRecord{
		Instance:  target.Name,
		Action:    models.ActionRestore,
		Parent:    backupName,
		StartedAt: time.Now(),
	}
	if err := c.db.AppendRunRecord(run); err != nil {
		return nil, err
	}

	snap, err := c.db.LatestSnapshot(backupName)
	if err != nil {
		return c.fail(run, fmt.Errorf("load backup for %s: %w", backupName, err))
	}

	client := c.clients(target)

	existing, err := client.FetchCatalog(ctx)
	if err != nil {
		return c.fail(run, fmt.Errorf("fetch target catalog: %w", err))
	}
	existingKeys := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		existingKeys[matchKey(item)] = struct{}{}
	}

	defaults, err := c.targetDefaults(ctx, target, client)
	if err != nil {
		return c.fail(run, err)
	}

	var errs []string
	for _, item := range filter.Apply(snap.Items) {
		if _, ok := existingKeys[matchKey(item)]; ok {
			run.Skipped++
			continue
		}
		item.Tags = withProvenance(item.Tags)
		_, err := client.AddItem(ctx, item, defaults)
		switch {
		case errors.Is(err, arr.ErrAlreadyExists):
			run.Skipped++
		case err != nil:
			errs = append(errs, fmt.Sprintf("add %q: %v", item.Title, err))
		default:
			run.Added++
		}
	}

	run.Error = joinErrors(errs)
	if err := c.db.SealRunRecord(run); err != nil {
		return run, err
	}

	c.logger.WithFields(logrus.Fields{
		"backup":  backupName,
		"target":  target.Name,
		"added":   run.Added,
		"skipped": run.Skipped,
		"errors":  len(errs),
	}).Info("Snapshot restore completed")

	return run, nil
}

// RestoreReleases requests a redownload of the exact release last recorded
// for each external id. Empty externalIDs means every id with stored
// history. An item that still has a file, left the catalog, or whose
// indexer no longer exists is skipped; a rejected GUID is a failure, never
// retried against a substitute release.
func (c *RestoreController) RestoreReleases(ctx context.Context, inst models.Instance, externalIDs []int64) (*models.RunRecord, error) {
	run := &models.RunRecord{
		Instance:  inst.Name,
		Action:    models.ActionRestoreReleases,
		StartedAt: time.Now(),
	}
	if err := c.db.AppendRunRecord(run); err != nil {
		return nil, err
	}

	if len(externalIDs) == 0 {
		ids, err := c.db.ReleaseExternalIDs(inst.Name)
		if err != nil {
			return c.fail(run, err)
		}
		externalIDs = ids
	}
	if len(externalIDs) == 0 {
		return c.fail(run, fmt.Errorf("no release history stored for %s", inst.Name))
	}

	client := c.clients(inst)

	catalog, err := client.FetchCatalog(ctx)
	if err != nil {
		return c.fail(run, fmt.Errorf("fetch catalog: %w", err))
	}
	remoteByExternal := make(map[int64]int64, len(catalog))
	for _, item := range catalog {
		remoteByExternal[item.ExternalID] = item.RemoteID
	}

	indexers, err := client.Indexers(ctx)
	if err != nil {
		return c.fail(run, fmt.Errorf("fetch indexers: %w", err))
	}

	var errs []string
	for _, externalID := range externalIDs {
		records, err := c.db.ReleaseRecords(inst.Name, externalID)
		if err != nil {
			return c.fail(run, err)
		}
		if len(records) == 0 {
			run.Skipped++
			continue
		}
		rec := records[0]

		remoteID, ok := remoteByExternal[externalID]
		if !ok {
			run.Skipped++
			continue
		}

		hasFile, err := client.HasFile(ctx, remoteID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("check %q: %v", rec.ReleaseTitle, err))
			continue
		}
		if hasFile {
			run.Skipped++
			continue
		}

		indexerID, ok := indexers[rec.Indexer]
		if !ok {
			c.logger.WithFields(logrus.Fields{
				"instance": inst.Name,
				"indexer":  rec.Indexer,
				"release":  rec.ReleaseTitle,
			}).Warn("Indexer no longer configured, skipping release")
			run.Skipped++
			continue
		}

		if err := client.TriggerRedownload(ctx, *rec, indexerID); err != nil {
			errs = append(errs, fmt.Sprintf("redownload %q: %v", rec.ReleaseTitle, err))
			continue
		}
		run.Added++
		c.logger.WithFields(logrus.Fields{
			"instance": inst.Name,
			"release":  rec.ReleaseTitle,
		}).Info("Triggered redownload")
	}

	run.Error = joinErrors(errs)
	if err := c.db.SealRunRecord(run); err != nil {
		return run, err
	}

	c.logger.WithFields(logrus.Fields{
		"instance":  inst.Name,
		"triggered": run.Added,
		"skipped":   run.Skipped,
		"errors":    len(errs),
	}).Info("Release restore completed")

	return run, nil
}

// targetDefaults mirrors SyncController.childDefaults without the cache:
// restores are rare, manual operations.
func (c *RestoreController) targetDefaults(ctx context.Context, target models.Instance, client CatalogClient) (models.AddDefaults, error) {
	profiles, err := client.QualityProfiles(ctx)
	if err != nil {
		return models.AddDefaults{}, fmt.Errorf("fetch quality profiles: %w", err)
	}
	folders, err := client.RootFolders(ctx)
	if err != nil {
		return models.AddDefaults{}, fmt.Errorf("fetch root folders: %w", err)
	}
	if len(folders) == 0 {
		return models.AddDefaults{}, fmt.Errorf("no root folders configured on %s", target.Name)
	}
	defaults := models.AddDefaults{QualityProfileID: 1, RootFolder: folders[0]}
	if len(profiles) > 0 {
		defaults.QualityProfileID = profiles[0].ID
	}
	return defaults, nil
}

// fail seals the run with the fatal cause and propagates it
func (c *RestoreController) fail(run *models.RunRecord, cause error) (*models.RunRecord, error) {
	run.Error = cause.Error()
	if err := c.db.SealRunRecord(run); err != nil {
		c.logger.WithError(err).Error("Failed to seal run record")
	}
	c.logger.WithFields(logrus.Fields{
		"instance": run.Instance,
		"action":   run.Action,
	}).WithError(cause).Error("Restore failed")
	return run, cause
}
