package arr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testClient(t *testing.T, server *httptest.Server, kind models.InstanceKind) *Client {
	t.Helper()
	inst := models.Instance{
		Name:   "test",
		URL:    server.URL,
		APIKey: "test-key",
		Kind:   kind,
	}
	return NewClient(inst, 5*time.Second, testLogger())
}

func TestFetchCatalogResolvesTags(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]tagResource{
			{ID: 1, Label: "sync"},
			{ID: 2, Label: "hd"},
		})
	})
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]mediaResource{
			{ID: 11, Title: "First", Year: 2020, TmdbID: 100, QualityProfileID: 4, RootFolderPath: "/movies", Monitored: true, Tags: []int{1, 99}},
			{ID: 12, Title: "No External ID", Year: 2021, Tags: []int{}},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server, models.KindMovie)
	items, err := client.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items without an external id should be dropped, got %d items", len(items))
	}

	item := items[0]
	if item.ExternalID != 100 || item.RemoteID != 11 {
		t.Errorf("unexpected ids: %+v", item)
	}
	if len(item.Tags) != 1 || item.Tags[0] != "sync" {
		t.Errorf("tags should resolve to known labels only, got %v", item.Tags)
	}
	if !item.Monitored || item.RootFolder != "/movies" {
		t.Errorf("unexpected item fields: %+v", item)
	}
}

func TestFetchCatalogShowUsesTvdbID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]tagResource{})
	})
	mux.HandleFunc("/api/v3/series", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]mediaResource{
			{ID: 21, Title: "Show", Year: 2019, TvdbID: 500, Tags: []int{}},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server, models.KindShow)
	items, err := client.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(items) != 1 || items[0].ExternalID != 500 {
		t.Errorf("show catalog should key on tvdb id, got %+v", items)
	}
}

func TestUnauthorizedMapsToApiError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(t, server, models.KindMovie)
	err := client.Ping(context.Background())

	var ae *ApiError
	if !errors.As(err, &ae) {
		t.Fatalf("expected ApiError, got %v", err)
	}
	if ae.Kind != ErrKindUnauthorized || ae.Status != http.StatusUnauthorized {
		t.Errorf("unexpected error classification: %+v", ae)
	}
}

func TestTimeoutMapsToTimeoutKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	inst := models.Instance{Name: "slow", URL: server.URL, APIKey: "k", Kind: models.KindMovie}
	client := NewClient(inst, 20*time.Millisecond, testLogger())

	err := client.Ping(context.Background())
	if !IsTimeout(err) {
		t.Errorf("expected timeout-kind error, got %v", err)
	}
}

func TestAddItemConflictIsAlreadyExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusConflict)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server, models.KindMovie)
	item := models.MediaItem{ExternalID: 100, Title: "Dup", Year: 2020}
	_, err := client.AddItem(context.Background(), item, models.AddDefaults{QualityProfileID: 1, RootFolder: "/movies"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAddItemCreatesMissingTags(t *testing.T) {
	var moviePayload map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var tag tagResource
			json.NewDecoder(r.Body).Decode(&tag)
			tag.ID = 9
			json.NewEncoder(w).Encode(tag)
			return
		}
		json.NewEncoder(w).Encode([]tagResource{{ID: 1, Label: "hd"}})
	})
	mux.HandleFunc("/api/v3/movie", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&moviePayload)
		json.NewEncoder(w).Encode(mediaResource{ID: 42})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server, models.KindMovie)
	item := models.MediaItem{ExternalID: 100, Title: "New", Year: 2020, Tags: []string{"hd", models.ProvenanceTag}}
	remoteID, err := client.AddItem(context.Background(), item, models.AddDefaults{QualityProfileID: 4, RootFolder: "/movies"})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if remoteID != 42 {
		t.Errorf("remoteID = %d, want 42", remoteID)
	}

	tags, ok := moviePayload["tags"].([]interface{})
	if !ok || len(tags) != 2 {
		t.Fatalf("unexpected tags in payload: %v", moviePayload["tags"])
	}
	if tags[0].(float64) != 1 || tags[1].(float64) != 9 {
		t.Errorf("expected existing tag 1 and created tag 9, got %v", tags)
	}
	if moviePayload["rootFolderPath"] != "/movies" {
		t.Errorf("payload should use destination defaults, got %v", moviePayload["rootFolderPath"])
	}
}

func TestAddShowGoesThroughLookup(t *testing.T) {
	var seriesPayload map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/tag", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]tagResource{})
	})
	mux.HandleFunc("/api/v3/series/lookup", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("term"); got != "tvdb:500" {
			t.Errorf("lookup term = %q, want tvdb:500", got)
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 1, "title": "Show", "tvdbId": 500, "titleSlug": "show"},
		})
	})
	mux.HandleFunc("/api/v3/series", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&seriesPayload)
		json.NewEncoder(w).Encode(mediaResource{ID: 77})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server, models.KindShow)
	item := models.MediaItem{ExternalID: 500, Title: "Show", Year: 2019}
	remoteID, err := client.AddItem(context.Background(), item, models.AddDefaults{QualityProfileID: 2, RootFolder: "/tv"})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if remoteID != 77 {
		t.Errorf("remoteID = %d, want 77", remoteID)
	}
	if _, ok := seriesPayload["id"]; ok {
		t.Error("lookup result id must be stripped before posting")
	}
	if seriesPayload["rootFolderPath"] != "/tv" {
		t.Errorf("payload should use destination defaults, got %v", seriesPayload["rootFolderPath"])
	}
}

func TestRemoveItemKeepsFiles(t *testing.T) {
	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie/11", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotQuery = r.URL.Query().Get("deleteFiles")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server, models.KindMovie)
	if err := client.RemoveItem(context.Background(), 11); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if gotQuery != "false" {
		t.Errorf("deleteFiles = %q, want false", gotQuery)
	}
}

func TestFetchReleaseHistoryFiltersEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/history/movie", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("movieId"); got != "11" {
			t.Errorf("movieId = %q, want 11", got)
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 1, "eventType": "grabbed", "sourceTitle": "Release.A", "date": "2024-01-01T00:00:00Z",
				"data": map[string]string{"indexer": "nzbgeek", "guid": "guid-a"}},
			{"id": 2, "eventType": "downloadFolderImported", "sourceTitle": "Release.B", "date": "2024-01-02T00:00:00Z",
				"data": map[string]string{"indexer": "nzbgeek", "guid": "guid-b"}},
			{"id": 3, "eventType": "movieFileDeleted", "sourceTitle": "Release.C", "date": "2024-01-03T00:00:00Z",
				"data": map[string]string{"indexer": "nzbgeek", "guid": "guid-c"}},
			{"id": 4, "eventType": "grabbed", "sourceTitle": "No.GUID", "date": "2024-01-04T00:00:00Z",
				"data": map[string]string{"indexer": "nzbgeek"}},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server, models.KindMovie)
	records, err := client.FetchReleaseHistory(context.Background(), 11, 100)
	if err != nil {
		t.Fatalf("FetchReleaseHistory: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 relevant records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.ExternalID != 100 {
			t.Errorf("records should be stamped with the external id, got %d", rec.ExternalID)
		}
	}
	if records[0].GUID != "guid-a" || records[1].GUID != "guid-b" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestTriggerRedownloadPayload(t *testing.T) {
	var payload map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/release", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server, models.KindMovie)
	rec := models.ReleaseRecord{GUID: "guid-a", ReleaseTitle: "Release.A", Indexer: "nzbgeek"}
	if err := client.TriggerRedownload(context.Background(), rec, 7); err != nil {
		t.Fatalf("TriggerRedownload: %v", err)
	}
	if payload["guid"] != "guid-a" || payload["indexerId"].(float64) != 7 || payload["title"] != "Release.A" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestHasFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/movie/11", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mediaResource{ID: 11, HasFile: true})
	})
	mux.HandleFunc("/api/v3/movie/12", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mediaResource{ID: 12})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server, models.KindMovie)
	has, err := client.HasFile(context.Background(), 11)
	if err != nil {
		t.Fatalf("HasFile: %v", err)
	}
	if !has {
		t.Error("item 11 should have a file")
	}
	has, err = client.HasFile(context.Background(), 12)
	if err != nil {
		t.Fatalf("HasFile: %v", err)
	}
	if has {
		t.Error("item 12 should not have a file")
	}
}
