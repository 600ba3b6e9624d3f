package models

// InstanceKind represents the kind of catalog an instance serves
type InstanceKind string

const (
	KindMovie InstanceKind = "movie" // Radarr-style movie catalog
	KindShow  InstanceKind = "show"  // Sonarr-style show catalog
)

// Action represents a scheduled or manually triggered operation
type Action string

const (
	ActionBackup          Action = "backup"
	ActionSync            Action = "sync"
	ActionRestore         Action = "restore"
	ActionRestoreReleases Action = "restore-releases"
)

// ProvenanceTag marks items that a sync run added to a child instance.
// Removal during sync is scoped to items carrying this tag so that manually
// added items are never touched.
const ProvenanceTag = "arrranger-sync"

// AddDefaults carries the destination-side defaults applied when an item is
// added to an instance that has no notion of the source's profiles and
// folders.
type AddDefaults struct {
	QualityProfileID int
	RootFolder       string
}

// QualityProfile is a quality profile as exposed by a remote instance
type QualityProfile struct {
	ID   int
	Name string
}
