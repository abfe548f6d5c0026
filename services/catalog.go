// Package services provides external service integrations.
package services

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"starbizvoices/models"
)

// CatalogService handles interactions with the content catalog API
type CatalogService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// CatalogTrack represents a track response from the catalog API
type CatalogTrack struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	FileURL      string  `json:"file_url"`
	Duration     float64 `json:"duration"`
	ThumbnailURL string  `json:"thumbnail_url"`
	ContentType  string  `json:"content_type"`
	AccessTier   string  `json:"access_tier"`
	Category     string  `json:"category"`
}

// CatalogPage is a paginated catalog listing
type CatalogPage struct {
	Tracks     []CatalogTrack `json:"tracks"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
}

// NewCatalogService creates a new catalog service instance
func NewCatalogService(baseURL, apiKey string) *CatalogService {
	return &CatalogService{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetTrack fetches track details from the catalog by ID
func (c *CatalogService) GetTrack(trackID string) (*models.Track, error) {
	reqURL := fmt.Sprintf("%s/api/v1/tracks/%s", c.baseURL, url.PathEscape(trackID))

	resp, err := c.get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch track from catalog: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog API returned status %d", resp.StatusCode)
	}

	var catalogTrack CatalogTrack
	if err := json.NewDecoder(resp.Body).Decode(&catalogTrack); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	return c.convertToTrack(catalogTrack), nil
}

// ListTracks fetches a page of the catalog, optionally filtered by
// category. Pages are 1-based; page 0 means the first page.
func (c *CatalogService) ListTracks(category string, page int) ([]models.Track, int, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if category != "" {
		query.Set("category", category)
	}
	reqURL := fmt.Sprintf("%s/api/v1/tracks?%s", c.baseURL, query.Encode())

	resp, err := c.get(reqURL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list catalog tracks: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("catalog API returned status %d", resp.StatusCode)
	}

	var catalogPage CatalogPage
	if err := json.NewDecoder(resp.Body).Decode(&catalogPage); err != nil {
		return nil, 0, fmt.Errorf("failed to decode catalog page: %w", err)
	}

	tracks := make([]models.Track, 0, len(catalogPage.Tracks))
	for _, catalogTrack := range catalogPage.Tracks {
		tracks = append(tracks, *c.convertToTrack(catalogTrack))
	}
	return tracks, catalogPage.TotalPages, nil
}

func (c *CatalogService) get(reqURL string) (*http.Response, error) {
	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.client.Do(req)
}

func (c *CatalogService) convertToTrack(catalogTrack CatalogTrack) *models.Track {
	track := &models.Track{
		ID:           catalogTrack.ID,
		Title:        catalogTrack.Title,
		Author:       catalogTrack.Author,
		FileURL:      catalogTrack.FileURL,
		Duration:     catalogTrack.Duration,
		ThumbnailURL: catalogTrack.ThumbnailURL,
		Kind:         models.ContentKind(catalogTrack.ContentType),
		Tier:         models.AccessTier(catalogTrack.AccessTier),
		Category:     catalogTrack.Category,
	}

	// Unknown content types play nothing, so default them to audio.
	switch track.Kind {
	case models.KindAudio, models.KindPodcast, models.KindPDF:
	default:
		track.Kind = models.KindAudio
	}

	return track
}
