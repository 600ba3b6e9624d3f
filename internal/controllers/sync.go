package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/LucaNori/arrranger/internal/services/arr"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// SyncController pushes the difference between a parent catalog and a child
// catalog to the child instance.
type SyncController struct {
	db       *models.Database
	clients  ClientFactory
	defaults *cache.Cache
	logger   *logrus.Logger
}

// NewSyncController creates a new sync controller. Child-side add defaults
// (first quality profile, first root folder) are cached briefly so frequent
// sync schedules do not hammer the settings endpoints.
func NewSyncController(db *models.Database, clients ClientFactory, logger *logrus.Logger) *SyncController {
	return &SyncController{
		db:       db,
		clients:  clients,
		defaults: cache.New(5*time.Minute, 10*time.Minute),
		logger:   logger,
	}
}

// Sync reconciles the child's catalog against the filtered parent catalog.
// Removals run before additions so child-side slots free up first, and only
// items this sync relationship added (provenance tag) are ever removed.
// Individual add/remove failures are counted, not fatal.
func (c *SyncController) Sync(ctx context.Context, parent, child models.Instance, filter models.Filter) (*models.RunRecord, error) {
	lock := c.db.Lock(child.Name)
	lock.Lock()
	defer lock.Unlock()

	run := &models.RunRecord{
		Instance:  child.Name,
		Action:    models.ActionSync,
		Parent:    parent.Name,
		StartedAt: time.Now(),
	}
	if err := c.db.AppendRunRecord(run); err != nil {
		return nil, err
	}

	if parent.Kind != child.Kind {
		cause := &ReconciliationError{
			Parent:     parent.Name,
			Child:      child.Name,
			ParentKind: parent.Kind,
			ChildKind:  child.Kind,
		}
		return c.fail(run, cause)
	}

	c.logger.WithFields(logrus.Fields{
		"parent": parent.Name,
		"child":  child.Name,
	}).Info("Starting sync")

	parentClient := c.clients(parent)
	childClient := c.clients(child)

	parentItems, err := parentClient.FetchCatalog(ctx)
	if err != nil {
		return c.fail(run, fmt.Errorf("fetch parent catalog: %w", err))
	}
	childItems, err := childClient.FetchCatalog(ctx)
	if err != nil {
		return c.fail(run, fmt.Errorf("fetch child catalog: %w", err))
	}

	eligible := filter.Apply(parentItems)

	eligibleKeys := make(map[string]struct{}, len(eligible))
	for _, item := range eligible {
		eligibleKeys[matchKey(item)] = struct{}{}
	}
	childKeys := make(map[string]struct{}, len(childItems))
	for _, item := range childItems {
		childKeys[matchKey(item)] = struct{}{}
	}

	var toAdd []models.MediaItem
	for _, item := range eligible {
		if _, ok := childKeys[matchKey(item)]; !ok {
			toAdd = append(toAdd, item)
		}
	}
	var toRemove []models.MediaItem
	for _, item := range childItems {
		if !item.HasTag(models.ProvenanceTag) {
			continue
		}
		if _, ok := eligibleKeys[matchKey(item)]; !ok {
			toRemove = append(toRemove, item)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"parent":    parent.Name,
		"child":     child.Name,
		"to_add":    len(toAdd),
		"to_remove": len(toRemove),
	}).Debug("Computed sync actions")

	defaults, err := c.childDefaults(ctx, child, childClient)
	if err != nil {
		return c.fail(run, err)
	}

	var errs []string

	for _, item := range toRemove {
		if err := childClient.RemoveItem(ctx, item.RemoteID); err != nil {
			errs = append(errs, fmt.Sprintf("remove %q: %v", item.Title, err))
			continue
		}
		run.Removed++
		c.logger.WithFields(logrus.Fields{
			"child": child.Name,
			"title": item.Title,
		}).Info("Removed item from child")
	}

	for _, item := range toAdd {
		item.Tags = withProvenance(item.Tags)
		_, err := childClient.AddItem(ctx, item, defaults)
		switch {
		case errors.Is(err, arr.ErrAlreadyExists):
			run.Skipped++
		case err != nil:
			errs = append(errs, fmt.Sprintf("add %q: %v", item.Title, err))
		default:
			run.Added++
			c.logger.WithFields(logrus.Fields{
				"child": child.Name,
				"title": item.Title,
			}).Info("Added item to child")
		}
	}

	run.Error = joinErrors(errs)
	if err := c.db.SealRunRecord(run); err != nil {
		return run, err
	}

	c.logger.WithFields(logrus.Fields{
		"parent":  parent.Name,
		"child":   child.Name,
		"added":   run.Added,
		"removed": run.Removed,
		"skipped": run.Skipped,
		"errors":  len(errs),
	}).Info("Sync completed")

	return run, nil
}

// childDefaults resolves the child's first quality profile and root folder.
// A child without a root folder cannot accept additions; that aborts the
// run.
func (c *SyncController) childDefaults(ctx context.Context, child models.Instance, client CatalogClient) (models.AddDefaults, error) {
	if cached, ok := c.defaults.Get(child.Name); ok {
		return cached.(models.AddDefaults), nil
	}

	profiles, err := client.QualityProfiles(ctx)
	if err != nil {
		return models.AddDefaults{}, fmt.Errorf("fetch quality profiles: %w", err)
	}
	folders, err := client.RootFolders(ctx)
	if err != nil {
		return models.AddDefaults{}, fmt.Errorf("fetch root folders: %w", err)
	}
	if len(folders) == 0 {
		return models.AddDefaults{}, fmt.Errorf("no root folders configured on %s", child.Name)
	}

	defaults := models.AddDefaults{QualityProfileID: 1, RootFolder: folders[0]}
	if len(profiles) > 0 {
		defaults.QualityProfileID = profiles[0].ID
	}

	c.defaults.Set(child.Name, defaults, cache.DefaultExpiration)
	return defaults, nil
}

// fail seals the run with the fatal cause and propagates it
func (c *SyncController) fail(run *models.RunRecord, cause error) (*models.RunRecord, error) {
	run.Error = cause.Error()
	if err := c.db.SealRunRecord(run); err != nil {
		c.logger.WithError(err).Error("Failed to seal run record")
	}
	c.logger.WithFields(logrus.Fields{
		"parent": run.Parent,
		"child":  run.Instance,
	}).WithError(cause).Error("Sync failed")
	return run, cause
}
