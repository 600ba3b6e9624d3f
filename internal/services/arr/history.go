package arr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/LucaNori/arrranger/internal/models"
)

// historyRecord is one entry from the history endpoint
type historyRecord struct {
	ID          int64     `json:"id"`
	EventType   string    `json:"eventType"`
	SourceTitle string    `json:"sourceTitle"`
	Date        time.Time `json:"date"`
	Data        struct {
		Indexer  string `json:"indexer"`
		GUID     string `json:"guid"`
		InfoHash string `json:"infoHash"`
	} `json:"data"`
}

type indexerResource struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// relevantEvents are the history event types worth keeping for restore
var relevantEvents = map[string]struct{}{
	"grabbed":                {},
	"downloadFolderImported": {},
}

// FetchReleaseHistory lists release history for one catalog item, filtered
// down to grab/import events. externalID is stamped onto the records so the
// store can key them independently of the instance-internal remote id.
func (c *Client) FetchReleaseHistory(ctx context.Context, remoteID, externalID int64) ([]models.ReleaseRecord, error) {
	var path string
	query := url.Values{}
	if c.kind == models.KindMovie {
		path = apiBase + "/history/movie"
		query.Set("movieId", fmt.Sprintf("%d", remoteID))
	} else {
		path = apiBase + "/history/series"
		query.Set("seriesId", fmt.Sprintf("%d", remoteID))
	}

	var records []historyRecord
	if err := c.doRequest(ctx, http.MethodGet, path, query, nil, &records); err != nil {
		return nil, err
	}

	var out []models.ReleaseRecord
	for _, rec := range records {
		if _, ok := relevantEvents[rec.EventType]; !ok {
			continue
		}
		if rec.ID == 0 || rec.Data.GUID == "" {
			continue
		}
		out = append(out, models.ReleaseRecord{
			Instance:     c.name,
			ExternalID:   externalID,
			EventID:      rec.ID,
			EventType:    rec.EventType,
			ReleaseTitle: rec.SourceTitle,
			Indexer:      rec.Data.Indexer,
			GUID:         rec.Data.GUID,
			InfoHash:     rec.Data.InfoHash,
			DownloadedAt: rec.Date,
		})
	}
	return out, nil
}

// Indexers returns the instance's configured indexers keyed by name
func (c *Client) Indexers(ctx context.Context) (map[string]int64, error) {
	var resources []indexerResource
	if err := c.doRequest(ctx, http.MethodGet, apiBase+"/indexer", nil, nil, &resources); err != nil {
		return nil, err
	}
	indexers := make(map[string]int64, len(resources))
	for _, res := range resources {
		if res.Name != "" {
			indexers[res.Name] = res.ID
		}
	}
	return indexers, nil
}

// TriggerRedownload pushes one exact historical release back into the
// instance's download pipeline. There is no fallback release: if the
// instance rejects the GUID the caller records a failure.
func (c *Client) TriggerRedownload(ctx context.Context, rec models.ReleaseRecord, indexerID int64) error {
	payload := map[string]interface{}{
		"guid":      rec.GUID,
		"indexerId": indexerID,
		"title":     rec.ReleaseTitle,
	}
	return c.doRequest(ctx, http.MethodPost, apiBase+"/release", nil, payload, nil)
}
