package scheduler

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/LucaNori/arrranger/internal/controllers"
	"github.com/LucaNori/arrranger/internal/models"
	"github.com/sirupsen/logrus"
)

// stubClient is a minimal CatalogClient whose catalog fetch can be gated on
// a channel to simulate a long-running job body.
type stubClient struct {
	items   []models.MediaItem
	entered chan struct{}
	release chan struct{}
}

func (s *stubClient) Ping(ctx context.Context) error { return nil }

func (s *stubClient) FetchCatalog(ctx context.Context) ([]models.MediaItem, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.items, nil
}

func (s *stubClient) FetchReleaseHistory(ctx context.Context, remoteID, externalID int64) ([]models.ReleaseRecord, error) {
	return nil, nil
}

func (s *stubClient) AddItem(ctx context.Context, item models.MediaItem, defaults models.AddDefaults) (int64, error) {
	return 0, nil
}

func (s *stubClient) RemoveItem(ctx context.Context, remoteID int64) error { return nil }

func (s *stubClient) QualityProfiles(ctx context.Context) ([]models.QualityProfile, error) {
	return nil, nil
}

func (s *stubClient) RootFolders(ctx context.Context) ([]string, error) {
	return []string{"/media"}, nil
}

func (s *stubClient) HasFile(ctx context.Context, remoteID int64) (bool, error) { return false, nil }

func (s *stubClient) Indexers(ctx context.Context) (map[string]int64, error) { return nil, nil }

func (s *stubClient) TriggerRedownload(ctx context.Context, rec models.ReleaseRecord, indexerID int64) error {
	return nil
}

func testScheduler(t *testing.T, client *stubClient) (*Scheduler, *models.Database) {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"), 3)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	factory := func(models.Instance) controllers.CatalogClient { return client }
	backupCtrl := controllers.NewBackupController(db, factory, logger)
	syncCtrl := controllers.NewSyncController(db, factory, logger)
	return NewScheduler(db, backupCtrl, syncCtrl, logger), db
}

func TestAddRejectsInvalidSpec(t *testing.T) {
	sched, _ := testScheduler(t, &stubClient{})

	err := sched.Add(Entry{Instance: "radarr", Action: models.ActionBackup, Spec: "not a cron spec"})
	if err == nil {
		t.Fatal("expected an invalid cron spec to be rejected")
	}
	if len(sched.Entries()) != 0 {
		t.Error("a rejected entry must not be registered")
	}
}

func TestAddRegistersEntry(t *testing.T) {
	sched, _ := testScheduler(t, &stubClient{})

	entry := Entry{Instance: "radarr", Action: models.ActionBackup, Spec: "0 3 * * *"}
	if err := sched.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}
	entries := sched.Entries()
	if len(entries) != 1 || entries[0].JobName() != "backup:radarr" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestOverlappingInvocationIsSkipped(t *testing.T) {
	client := &stubClient{
		items:   []models.MediaItem{{ExternalID: 1}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	sched, db := testScheduler(t, client)
	if err := db.UpsertInstance(models.Instance{Name: "radarr", Kind: models.KindMovie}); err != nil {
		t.Fatalf("UpsertInstance: %v", err)
	}

	done := make(chan struct{})
	go func() {
		sched.TriggerBackup("radarr", false)
		close(done)
	}()

	// wait until the first invocation is inside its job body
	select {
	case <-client.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first invocation never started")
	}

	sched.TriggerBackup("radarr", false)
	if got := sched.Skips(); got != 1 {
		t.Errorf("overlapping invocation should be skipped, skips=%d", got)
	}

	close(client.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first invocation never finished")
	}

	if _, err := db.LatestSnapshot("radarr"); err != nil {
		t.Errorf("the first invocation should have completed its backup: %v", err)
	}
}

func TestTriggerBackupRunsJob(t *testing.T) {
	client := &stubClient{items: []models.MediaItem{{ExternalID: 1}, {ExternalID: 2}}}
	sched, db := testScheduler(t, client)
	if err := db.UpsertInstance(models.Instance{Name: "radarr", Kind: models.KindMovie}); err != nil {
		t.Fatalf("UpsertInstance: %v", err)
	}

	sched.TriggerBackup("radarr", false)

	run, err := db.LastRun("radarr")
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if run == nil || !run.Sealed() || run.Added != 2 {
		t.Errorf("unexpected run record: %+v", run)
	}
}

func TestTriggerSyncRequiresConfiguredEntry(t *testing.T) {
	sched, _ := testScheduler(t, &stubClient{})

	if err := sched.TriggerSync("radarr-4k"); err == nil {
		t.Fatal("expected an error for an instance without a sync entry")
	}

	if err := sched.Add(Entry{
		Instance: "radarr-4k",
		Action:   models.ActionSync,
		Parent:   "radarr-main",
		Spec:     "0 4 * * *",
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// the entry exists now; the run itself fails on the unknown instance
	// and is absorbed by the job body
	if err := sched.TriggerSync("radarr-4k"); err != nil {
		t.Errorf("TriggerSync with a configured entry should not error: %v", err)
	}
}
