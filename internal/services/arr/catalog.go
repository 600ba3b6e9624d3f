package arr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/sirupsen/logrus"
)

// mediaResource is the shared shape of movie and series resources. Radarr
// and Sonarr tag items with numeric tag ids; labels live in a separate
// endpoint.
type mediaResource struct {
	ID               int64  `json:"id,omitempty"`
	Title            string `json:"title"`
	Year             int    `json:"year"`
	TmdbID           int64  `json:"tmdbId,omitempty"`
	TvdbID           int64  `json:"tvdbId,omitempty"`
	QualityProfileID int    `json:"qualityProfileId"`
	RootFolderPath   string `json:"rootFolderPath"`
	Monitored        bool   `json:"monitored"`
	HasFile          bool   `json:"hasFile,omitempty"`
	Tags             []int  `json:"tags"`
	Statistics       *struct {
		EpisodeFileCount int `json:"episodeFileCount"`
	} `json:"statistics,omitempty"`
}

type tagResource struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

type qualityProfileResource struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type rootFolderResource struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
}

func (r mediaResource) externalID(kind models.InstanceKind) int64 {
	if kind == models.KindMovie {
		return r.TmdbID
	}
	return r.TvdbID
}

// FetchCatalog lists the full remote catalog, with numeric tag ids resolved
// to their labels.
func (c *Client) FetchCatalog(ctx context.Context) ([]models.MediaItem, error) {
	labels, err := c.tagLabels(ctx)
	if err != nil {
		return nil, err
	}

	var resources []mediaResource
	if err := c.doRequest(ctx, http.MethodGet, c.itemPath(), nil, nil, &resources); err != nil {
		return nil, err
	}

	items := make([]models.MediaItem, 0, len(resources))
	for _, res := range resources {
		externalID := res.externalID(c.kind)
		if externalID == 0 {
			c.logger.WithFields(logrus.Fields{
				"instance": c.name,
				"title":    res.Title,
			}).Warn("Catalog item without external id, skipping")
			continue
		}

		tags := make([]string, 0, len(res.Tags))
		for _, id := range res.Tags {
			if label, ok := labels[id]; ok {
				tags = append(tags, label)
			}
		}

		items = append(items, models.MediaItem{
			Instance:         c.name,
			ExternalID:       externalID,
			RemoteID:         res.ID,
			Title:            res.Title,
			Year:             res.Year,
			QualityProfileID: res.QualityProfileID,
			RootFolder:       res.RootFolderPath,
			Tags:             tags,
			Monitored:        res.Monitored,
		})
	}

	return items, nil
}

// AddItem adds one item to the instance's catalog using the destination's
// default profile/folder and returns the new remote id. Shows go through
// the lookup endpoint first, the way Sonarr requires. A destination that
// already holds the item yields ErrAlreadyExists.
func (c *Client) AddItem(ctx context.Context, item models.MediaItem, defaults models.AddDefaults) (int64, error) {
	tagIDs, err := c.ensureTags(ctx, item.Tags)
	if err != nil {
		return 0, err
	}

	var payload map[string]interface{}
	if c.kind == models.KindMovie {
		payload = map[string]interface{}{
			"title":            item.Title,
			"year":             item.Year,
			"tmdbId":           item.ExternalID,
			"qualityProfileId": defaults.QualityProfileID,
			"rootFolderPath":   defaults.RootFolder,
			"monitored":        true,
			"tags":             tagIDs,
			"addOptions": map[string]interface{}{
				"monitor":        "movieOnly",
				"searchForMovie": true,
				"addMethod":      "manual",
			},
		}
	} else {
		looked, err := c.lookupSeries(ctx, item.ExternalID)
		if err != nil {
			return 0, err
		}
		looked["qualityProfileId"] = defaults.QualityProfileID
		looked["rootFolderPath"] = defaults.RootFolder
		looked["seasonFolder"] = true
		looked["monitored"] = true
		looked["tags"] = tagIDs
		looked["addOptions"] = map[string]interface{}{
			"monitor":                  "all",
			"searchForMissingEpisodes": true,
		}
		delete(looked, "id")
		payload = looked
	}

	var created mediaResource
	if err := c.doRequest(ctx, http.MethodPost, c.itemPath(), nil, payload, &created); err != nil {
		var ae *ApiError
		if errors.As(err, &ae) && ae.Status == http.StatusConflict {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return created.ID, nil
}

// lookupSeries resolves a TVDB id to a full series resource via the lookup
// endpoint; the result is the add payload skeleton.
func (c *Client) lookupSeries(ctx context.Context, tvdbID int64) (map[string]interface{}, error) {
	query := url.Values{"term": []string{fmt.Sprintf("tvdb:%d", tvdbID)}}
	var results []map[string]interface{}
	if err := c.doRequest(ctx, http.MethodGet, apiBase+"/series/lookup", query, nil, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, &ApiError{
			Kind:     ErrKindNotFound,
			Instance: c.name,
			Detail:   fmt.Sprintf("series lookup for tvdb:%d returned no results", tvdbID),
		}
	}
	return results[0], nil
}

// RemoveItem removes one item from the catalog by remote id. Media files on
// disk are left alone.
func (c *Client) RemoveItem(ctx context.Context, remoteID int64) error {
	query := url.Values{"deleteFiles": []string{"false"}}
	path := fmt.Sprintf("%s/%d", c.itemPath(), remoteID)
	return c.doRequest(ctx, http.MethodDelete, path, query, nil, nil)
}

// HasFile reports whether the item already has downloaded media. For shows
// any episode file counts.
func (c *Client) HasFile(ctx context.Context, remoteID int64) (bool, error) {
	var res mediaResource
	path := fmt.Sprintf("%s/%d", c.itemPath(), remoteID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &res); err != nil {
		return false, err
	}
	if c.kind == models.KindMovie {
		return res.HasFile, nil
	}
	return res.Statistics != nil && res.Statistics.EpisodeFileCount > 0, nil
}

// QualityProfiles lists the instance's quality profiles
func (c *Client) QualityProfiles(ctx context.Context) ([]models.QualityProfile, error) {
	var resources []qualityProfileResource
	if err := c.doRequest(ctx, http.MethodGet, apiBase+"/qualityprofile", nil, nil, &resources); err != nil {
		return nil, err
	}
	profiles := make([]models.QualityProfile, 0, len(resources))
	for _, res := range resources {
		profiles = append(profiles, models.QualityProfile{ID: res.ID, Name: res.Name})
	}
	return profiles, nil
}

// RootFolders lists the instance's configured root folder paths
func (c *Client) RootFolders(ctx context.Context) ([]string, error) {
	var resources []rootFolderResource
	if err := c.doRequest(ctx, http.MethodGet, apiBase+"/rootfolder", nil, nil, &resources); err != nil {
		return nil, err
	}
	folders := make([]string, 0, len(resources))
	for _, res := range resources {
		folders = append(folders, res.Path)
	}
	return folders, nil
}

// tagLabels fetches the id-to-label tag mapping
func (c *Client) tagLabels(ctx context.Context) (map[int]string, error) {
	var tags []tagResource
	if err := c.doRequest(ctx, http.MethodGet, apiBase+"/tag", nil, nil, &tags); err != nil {
		return nil, err
	}
	labels := make(map[int]string, len(tags))
	for _, tag := range tags {
		labels[tag.ID] = tag.Label
	}
	return labels, nil
}

// ensureTags maps tag labels to ids, creating any label the instance does
// not know yet (the provenance tag in particular).
func (c *Client) ensureTags(ctx context.Context, labels []string) ([]int, error) {
	if len(labels) == 0 {
		return []int{}, nil
	}

	existing, err := c.tagLabels(ctx)
	if err != nil {
		return nil, err
	}
	byLabel := make(map[string]int, len(existing))
	for id, label := range existing {
		byLabel[label] = id
	}

	ids := make([]int, 0, len(labels))
	for _, label := range labels {
		if id, ok := byLabel[label]; ok {
			ids = append(ids, id)
			continue
		}
		var created tagResource
		err := c.doRequest(ctx, http.MethodPost, apiBase+"/tag", nil, tagResource{Label: label}, &created)
		if err != nil {
			return nil, err
		}
		ids = append(ids, created.ID)
		byLabel[label] = created.ID
	}
	return ids, nil
}
