package controllers

import (
	"context"
	"fmt"
	"strings"

	"github.com/LucaNori/arrranger/internal/models"
)

// CatalogClient is the remote-instance capability the engines run against.
// *arr.Client satisfies it; tests substitute fakes.
type CatalogClient interface {
	Ping(ctx context.Context) error
	FetchCatalog(ctx context.Context) ([]models.MediaItem, error)
	FetchReleaseHistory(ctx context.Context, remoteID, externalID int64) ([]models.ReleaseRecord, error)
	AddItem(ctx context.Context, item models.MediaItem, defaults models.AddDefaults) (int64, error)
	RemoveItem(ctx context.Context, remoteID int64) error
	QualityProfiles(ctx context.Context) ([]models.QualityProfile, error)
	RootFolders(ctx context.Context) ([]string, error)
	HasFile(ctx context.Context, remoteID int64) (bool, error)
	Indexers(ctx context.Context) (map[string]int64, error)
	TriggerRedownload(ctx context.Context, rec models.ReleaseRecord, indexerID int64) error
}

// ClientFactory builds a CatalogClient for one instance
type ClientFactory func(models.Instance) CatalogClient

// ReconciliationError reports an impossible sync pairing. It cannot
// self-resolve without configuration change, so callers skip the job rather
// than retry it.
type ReconciliationError struct {
	Parent     string
	Child      string
	ParentKind models.InstanceKind
	ChildKind  models.InstanceKind
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("cross-kind-mismatch: cannot sync %s (%s) into %s (%s)",
		e.Parent, e.ParentKind, e.Child, e.ChildKind)
}

// matchKey is the cross-instance identity of a catalog item. External ids
// (TMDB/TVDB) are shared across instances of the same kind; title+year is
// the fallback for records that predate external ids.
func matchKey(item models.MediaItem) string {
	if item.ExternalID != 0 {
		return fmt.Sprintf("id:%d", item.ExternalID)
	}
	return fmt.Sprintf("title:%s:%d", strings.ToLower(item.Title), item.Year)
}

// joinErrors flattens per-item failures into the RunRecord error field
func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return strings.Join(errs, "; ")
}

// withProvenance returns a copy of tags with the sync provenance tag
// appended exactly once.
func withProvenance(tags []string) []string {
	for _, t := range tags {
		if t == models.ProvenanceTag {
			return tags
		}
	}
	out := make([]string, 0, len(tags)+1)
	out = append(out, tags...)
	return append(out, models.ProvenanceTag)
}
