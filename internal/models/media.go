package models

import "time"

// Instance is one configured remote catalog instance. The registry is
// reloaded from configuration at startup; at runtime instances are
// immutable.
type Instance struct {
	Name   string `boltholdKey:"Name"`
	URL    string
	APIKey string
	Kind   InstanceKind
}

// MediaItem is one remote catalog entry as last observed. ExternalID is the
// cross-instance catalog identifier (TMDB for movies, TVDB for shows);
// RemoteID is the instance-internal record id needed for remove and history
// calls.
type MediaItem struct {
	Instance         string
	ExternalID       int64
	RemoteID         int64
	Title            string
	Year             int
	QualityProfileID int
	RootFolder       string
	Tags             []string
	Monitored        bool
}

// HasTag reports whether the item carries the given tag
func (m MediaItem) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Snapshot is the full catalog of one instance captured by a backup run.
// The store keeps the latest snapshot plus a bounded history.
type Snapshot struct {
	ID         uint64 `boltholdKey:"ID"`
	Instance   string `boltholdIndex:"Instance"`
	CapturedAt time.Time
	Items      []MediaItem
}

// ExternalIDs returns the set of external ids contained in the snapshot
func (s *Snapshot) ExternalIDs() map[int64]struct{} {
	ids := make(map[int64]struct{}, len(s.Items))
	for _, item := range s.Items {
		ids[item.ExternalID] = struct{}{}
	}
	return ids
}

// ReleaseRecord is one release-level provenance entry from an instance's
// history, kept only when release-history backup is enabled. EventID is the
// instance's own history event id and dedups re-backups.
type ReleaseRecord struct {
	ID           uint64 `boltholdKey:"ID"`
	Instance     string `boltholdIndex:"Instance"`
	ExternalID   int64
	EventID      int64
	EventType    string
	ReleaseTitle string
	Indexer      string
	GUID         string
	InfoHash     string
	DownloadedAt time.Time
}

// RunRecord is the append-only audit entry for one job run. It is created
// unsealed when the run starts and sealed exactly once when the run ends;
// a record left unsealed after a restart marks an abandoned run.
type RunRecord struct {
	ID         uint64 `boltholdKey:"ID"`
	Instance   string `boltholdIndex:"Instance"`
	Action     Action
	Parent     string // set for sync and restore actions
	StartedAt  time.Time
	FinishedAt *time.Time
	Added      int
	Removed    int
	Skipped    int
	Error      string
}

// Sealed reports whether the run has completed
func (r *RunRecord) Sealed() bool {
	return r.FinishedAt != nil
}
