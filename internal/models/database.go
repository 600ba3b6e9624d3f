package models

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// schemaVersion is bumped whenever the persisted layout changes in a way
// older binaries cannot read.
const schemaVersion = 1

const defaultSnapshotHistory = 3

type schemaInfo struct {
	Version int
}

// Database wraps the bolthold store and owns all durable state: the
// instance registry, catalog snapshots, release records and the run log.
// It also enforces single-writer discipline per instance via Lock.
type Database struct {
	store     *bolthold.Store
	retention int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDatabase opens (or creates) the database at path. retention bounds how
// many snapshots are kept per instance; values below 1 fall back to the
// default.
func NewDatabase(path string, retention int) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, &StoreError{Kind: StoreIO, Op: "open", Err: err}
	}

	if retention < 1 {
		retention = defaultSnapshotHistory
	}

	db := &Database{
		store:     store,
		retention: retention,
		locks:     make(map[string]*sync.Mutex),
	}

	if err := db.checkSchema(); err != nil {
		store.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the underlying store
func (db *Database) Close() error {
	return db.store.Close()
}

func (db *Database) checkSchema() error {
	var info schemaInfo
	err := db.store.Get("schema", &info)
	if err == bolthold.ErrNotFound {
		return storeError("schema", db.store.Upsert("schema", schemaInfo{Version: schemaVersion}))
	}
	if err != nil {
		return storeError("schema", err)
	}
	if info.Version > schemaVersion {
		return &StoreError{
			Kind: StoreConstraint,
			Op:   "schema",
			Err:  fmt.Errorf("database schema version %d is newer than supported version %d", info.Version, schemaVersion),
		}
	}
	return nil
}

// Lock returns the mutex serializing snapshot writers for one instance.
// Backup and sync runs touching the same instance hold it for the whole
// run so neither ever diffs against a half-replaced snapshot.
func (db *Database) Lock(instance string) *sync.Mutex {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.locks[instance]
	if !ok {
		l = &sync.Mutex{}
		db.locks[instance] = l
	}
	return l
}

// Instance registry

// UpsertInstance creates or replaces an instance registration
func (db *Database) UpsertInstance(inst Instance) error {
	return storeError("upsert instance", db.store.Upsert(inst.Name, &inst))
}

// Instance returns one instance by name
func (db *Database) Instance(name string) (*Instance, error) {
	var inst Instance
	if err := db.store.Get(name, &inst); err != nil {
		return nil, storeError("get instance", err)
	}
	return &inst, nil
}

// Instances returns all registered instances sorted by name
func (db *Database) Instances() ([]*Instance, error) {
	var instances []*Instance
	if err := db.store.Find(&instances, nil); err != nil {
		return nil, storeError("list instances", err)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	return instances, nil
}

// RemoveInstance deletes an instance and everything recorded for it:
// snapshots, release records and run records, in a single transaction.
func (db *Database) RemoveInstance(name string) error {
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		if err := db.store.TxDelete(tx, name, &Instance{}); err != nil && err != bolthold.ErrNotFound {
			return err
		}
		if err := db.store.TxDeleteMatching(tx, &Snapshot{}, bolthold.Where("Instance").Eq(name)); err != nil {
			return err
		}
		if err := db.store.TxDeleteMatching(tx, &ReleaseRecord{}, bolthold.Where("Instance").Eq(name)); err != nil {
			return err
		}
		return db.store.TxDeleteMatching(tx, &RunRecord{}, bolthold.Where("Instance").Eq(name))
	})
	return storeError("remove instance", err)
}

// Snapshots

// LatestSnapshot returns the newest snapshot stored for an instance, or a
// not-found StoreError when the instance has never been backed up.
func (db *Database) LatestSnapshot(instance string) (*Snapshot, error) {
	var snaps []*Snapshot
	err := db.store.Find(&snaps,
		bolthold.Where("Instance").Eq(instance).Index("Instance").
			SortBy("CapturedAt").Reverse().Limit(1))
	if err != nil {
		return nil, storeError("latest snapshot", err)
	}
	if len(snaps) == 0 {
		return nil, &StoreError{Kind: StoreNotFound, Op: "latest snapshot", Err: bolthold.ErrNotFound}
	}
	return snaps[0], nil
}

// Snapshots returns all stored snapshots for an instance, newest first
func (db *Database) Snapshots(instance string) ([]*Snapshot, error) {
	var snaps []*Snapshot
	err := db.store.Find(&snaps,
		bolthold.Where("Instance").Eq(instance).Index("Instance").
			SortBy("CapturedAt").Reverse())
	if err != nil {
		return nil, storeError("list snapshots", err)
	}
	return snaps, nil
}

// ReplaceSnapshot stores items as the new authoritative snapshot for the
// instance and prunes history beyond the retention bound. The insert and
// the prune happen in one bbolt transaction: either the whole new snapshot
// becomes visible or the previous state is fully retained.
func (db *Database) ReplaceSnapshot(instance string, items []MediaItem) (*Snapshot, error) {
	snap := &Snapshot{
		Instance:   instance,
		CapturedAt: time.Now(),
		Items:      items,
	}

	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		if err := db.store.TxInsert(tx, bolthold.NextSequence(), snap); err != nil {
			return err
		}

		var old []*Snapshot
		err := db.store.TxFind(tx, &old,
			bolthold.Where("Instance").Eq(instance).Index("Instance").
				SortBy("CapturedAt").Reverse())
		if err != nil {
			return err
		}
		for i := db.retention; i < len(old); i++ {
			if err := db.store.TxDelete(tx, old[i].ID, &Snapshot{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError("replace snapshot", err)
	}
	return snap, nil
}

// Release records

// AppendReleaseRecords stores release history records for an instance,
// silently skipping events already recorded (deduplicated by the remote
// history event id). Returns the number of records actually added.
func (db *Database) AppendReleaseRecords(instance string, records []ReleaseRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	added := 0
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []*ReleaseRecord
		err := db.store.TxFind(tx, &existing,
			bolthold.Where("Instance").Eq(instance).Index("Instance"))
		if err != nil {
			return err
		}
		seen := make(map[int64]struct{}, len(existing))
		for _, rec := range existing {
			seen[rec.EventID] = struct{}{}
		}

		for i := range records {
			rec := records[i]
			if _, dup := seen[rec.EventID]; dup {
				continue
			}
			rec.Instance = instance
			if err := db.store.TxInsert(tx, bolthold.NextSequence(), &rec); err != nil {
				return err
			}
			seen[rec.EventID] = struct{}{}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, storeError("append release records", err)
	}
	return added, nil
}

// ReleaseRecords returns the stored release history for one catalog item,
// most recent download first.
func (db *Database) ReleaseRecords(instance string, externalID int64) ([]*ReleaseRecord, error) {
	var records []*ReleaseRecord
	err := db.store.Find(&records,
		bolthold.Where("Instance").Eq(instance).Index("Instance").
			And("ExternalID").Eq(externalID).
			SortBy("DownloadedAt").Reverse())
	if err != nil {
		return nil, storeError("release records", err)
	}
	return records, nil
}

// ReleaseExternalIDs returns the distinct external ids that have stored
// release history for an instance.
func (db *Database) ReleaseExternalIDs(instance string) ([]int64, error) {
	var records []*ReleaseRecord
	err := db.store.Find(&records,
		bolthold.Where("Instance").Eq(instance).Index("Instance"))
	if err != nil {
		return nil, storeError("release external ids", err)
	}
	seen := make(map[int64]struct{})
	var ids []int64
	for _, rec := range records {
		if _, ok := seen[rec.ExternalID]; ok {
			continue
		}
		seen[rec.ExternalID] = struct{}{}
		ids = append(ids, rec.ExternalID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Run log

// AppendRunRecord stores a freshly started, unsealed run record and
// populates its ID.
func (db *Database) AppendRunRecord(run *RunRecord) error {
	return storeError("append run record", db.store.Insert(bolthold.NextSequence(), run))
}

// SealRunRecord marks the run finished. Sealed records are immutable;
// resealing is a constraint violation.
func (db *Database) SealRunRecord(run *RunRecord) error {
	if run.Sealed() {
		return &StoreError{
			Kind: StoreConstraint,
			Op:   "seal run record",
			Err:  fmt.Errorf("run %d already sealed", run.ID),
		}
	}
	now := time.Now()
	run.FinishedAt = &now
	return storeError("seal run record", db.store.Update(run.ID, run))
}

// RunRecords returns the most recent run records across all instances,
// newest first, at most limit entries (0 = all).
func (db *Database) RunRecords(limit int) ([]*RunRecord, error) {
	var runs []*RunRecord
	if err := db.store.Find(&runs, nil); err != nil {
		return nil, storeError("list run records", err)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// LastRun returns the newest run record for one instance, or nil when the
// instance has never run.
func (db *Database) LastRun(instance string) (*RunRecord, error) {
	runs, err := db.RunRecords(0)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if run.Instance == instance {
			return run, nil
		}
	}
	return nil, nil
}

// UnsealedRuns returns runs abandoned by a previous process (started but
// never sealed). They are reported, never auto-resumed.
func (db *Database) UnsealedRuns() ([]*RunRecord, error) {
	var all []*RunRecord
	if err := db.store.Find(&all, nil); err != nil {
		return nil, storeError("unsealed runs", err)
	}
	var runs []*RunRecord
	for _, run := range all {
		if !run.Sealed() {
			runs = append(runs, run)
		}
	}
	return runs, nil
}
