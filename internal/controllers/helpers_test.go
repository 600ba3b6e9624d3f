package controllers

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/sirupsen/logrus"
)

func testDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"), 3)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeClient is an in-memory CatalogClient. Mutating calls are recorded in
// ops in invocation order so tests can assert on sequencing.
type fakeClient struct {
	mu sync.Mutex

	items    []models.MediaItem
	fetchErr error

	history    map[int64][]models.ReleaseRecord
	historyErr error

	profiles []models.QualityProfile
	folders  []string
	hasFile  map[int64]bool
	indexers map[string]int64

	addErr        func(models.MediaItem) error
	removeErr     error
	redownloadErr error

	added        []models.MediaItem
	removed      []int64
	redownloaded []models.ReleaseRecord
	historyCalls []int64
	ops          []string
}

func newFakeClient(items ...models.MediaItem) *fakeClient {
	return &fakeClient{
		items:    items,
		history:  map[int64][]models.ReleaseRecord{},
		profiles: []models.QualityProfile{{ID: 4, Name: "HD-1080p"}},
		folders:  []string{"/media"},
		hasFile:  map[int64]bool{},
		indexers: map[string]int64{},
	}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) FetchCatalog(ctx context.Context) ([]models.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]models.MediaItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeClient) FetchReleaseHistory(ctx context.Context, remoteID, externalID int64) ([]models.ReleaseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, externalID)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[externalID], nil
}

func (f *fakeClient) AddItem(ctx context.Context, item models.MediaItem, defaults models.AddDefaults) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		if err := f.addErr(item); err != nil {
			return 0, err
		}
	}
	item.QualityProfileID = defaults.QualityProfileID
	item.RootFolder = defaults.RootFolder
	f.added = append(f.added, item)
	f.ops = append(f.ops, fmt.Sprintf("add:%d", item.ExternalID))
	return int64(1000 + len(f.added)), nil
}

func (f *fakeClient) RemoveItem(ctx context.Context, remoteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, remoteID)
	f.ops = append(f.ops, fmt.Sprintf("remove:%d", remoteID))
	return nil
}

func (f *fakeClient) QualityProfiles(ctx context.Context) ([]models.QualityProfile, error) {
	return f.profiles, nil
}

func (f *fakeClient) RootFolders(ctx context.Context) ([]string, error) {
	return f.folders, nil
}

func (f *fakeClient) HasFile(ctx context.Context, remoteID int64) (bool, error) {
	return f.hasFile[remoteID], nil
}

func (f *fakeClient) Indexers(ctx context.Context) (map[string]int64, error) {
	return f.indexers, nil
}

func (f *fakeClient) TriggerRedownload(ctx context.Context, rec models.ReleaseRecord, indexerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.redownloadErr != nil {
		return f.redownloadErr
	}
	f.redownloaded = append(f.redownloaded, rec)
	return nil
}

// fakeFactory routes instances to their fakes by name
func fakeFactory(fakes map[string]*fakeClient) ClientFactory {
	return func(inst models.Instance) CatalogClient {
		return fakes[inst.Name]
	}
}

func movieItem(externalID, remoteID int64, title string, tags ...string) models.MediaItem {
	return models.MediaItem{
		ExternalID: externalID,
		RemoteID:   remoteID,
		Title:      title,
		Year:       2020,
		Tags:       tags,
	}
}
