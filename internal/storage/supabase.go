// Package storage implements the story persistence protocol over the
// Supabase REST API (PostgREST). Three collections back it: stories,
// inputs and story_versions.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autostory/internal/domain"
)

const (
	restPrefix     = "/rest/v1"
	requestTimeout = 15 * time.Second
)

// Options configures the SupabaseStore.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// SupabaseStore is a typed HTTP client for the three REST collections. It
// is safe for concurrent use; appends to the same story are serialized by a
// per-story mutex so the read-increment-write sequence cannot race with
// itself and mint duplicate (major, minor) pairs.
type SupabaseStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSupabaseStore(opts Options) *SupabaseStore {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &SupabaseStore{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		client:  client,
		logger:  opts.Logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Configured reports whether the datastore credentials are present.
func (s *SupabaseStore) Configured() bool {
	return s.baseURL != "" && s.apiKey != ""
}

type storyRow struct {
	ID string `json:"id"`
}

type inputRow struct {
	StoryID  string  `json:"story_id"`
	ImageURL *string `json:"image_url"`
	UserText *string `json:"user_text"`
	Formato  string  `json:"formato"`
	Tono     string  `json:"tono"`
}

type versionRow struct {
	StoryID   string `json:"story_id"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Narrative string `json:"narrative"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateStory inserts the story row, its input record and the first
// narrative version. Every new story starts at version 1.0; major numbering
// is per-story, not a global counter.
//
// When the store is unconfigured this is a logged no-op: generation still
// succeeds from the caller's perspective. Append and list do not share this
// leniency since they have no meaningful degraded outcome.
func (s *SupabaseStore) CreateStory(ctx context.Context, rec domain.InputRecord, narrative string) error {
	if !s.Configured() {
		s.logger.Warn().Str("story_id", rec.StoryID).Msg("storage: supabase not configured, story not persisted")
		return nil
	}

	if err := s.insert(ctx, "stories", storyRow{ID: rec.StoryID}); err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	if err := s.insert(ctx, "inputs", inputRow{
		StoryID:  rec.StoryID,
		ImageURL: nullable(rec.ImageReference),
		UserText: nullable(rec.UserText),
		Formato:  string(rec.Format),
		Tono:     string(rec.Tone),
	}); err != nil {
		return fmt.Errorf("insert inputs: %w", err)
	}
	if err := s.insert(ctx, "story_versions", versionRow{
		StoryID:   rec.StoryID,
		Major:     1,
		Minor:     0,
		Narrative: narrative,
	}); err != nil {
		return fmt.Errorf("insert first version: %w", err)
	}

	s.logger.Info().Str("story_id", rec.StoryID).Str("version", "1.0").Msg("storage: story saved")
	return nil
}

// AppendMinorRevision looks up the latest (major, minor) for the story and
// inserts the next minor revision with major held fixed. Unknown stories
// fail with domain.ErrNotFound before any write.
func (s *SupabaseStore) AppendMinorRevision(ctx context.Context, storyID, narrative string) (domain.Version, error) {
	if !s.Configured() {
		return domain.Version{}, fmt.Errorf("%w: supabase not configured", domain.ErrStoreUnavailable)
	}

	lock := s.storyLock(storyID)
	lock.Lock()
	defer lock.Unlock()

	query := url.Values{}
	query.Set("story_id", "eq."+storyID)
	query.Set("select", "major,minor")
	query.Set("order", "major.desc,minor.desc")
	query.Set("limit", "1")

	var latest []versionRow
	if err := s.get(ctx, "story_versions", query, &latest); err != nil {
		return domain.Version{}, fmt.Errorf("lookup latest version: %w", err)
	}
	if len(latest) == 0 {
		return domain.Version{}, fmt.Errorf("%w: story %s", domain.ErrNotFound, storyID)
	}

	next := domain.Version{Major: latest[0].Major, Minor: latest[0].Minor + 1}
	if err := s.insert(ctx, "story_versions", versionRow{
		StoryID:   storyID,
		Major:     next.Major,
		Minor:     next.Minor,
		Narrative: narrative,
	}); err != nil {
		return domain.Version{}, fmt.Errorf("insert revision: %w", err)
	}

	s.logger.Info().Str("story_id", storyID).Str("version", next.String()).Msg("storage: revision saved")
	return next, nil
}

// ListVersions returns every stored version of a story, newest first.
func (s *SupabaseStore) ListVersions(ctx context.Context, storyID string) ([]domain.NarrativeVersion, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("%w: supabase not configured", domain.ErrStoreUnavailable)
	}

	query := url.Values{}
	query.Set("story_id", "eq."+storyID)
	query.Set("order", "major.desc,minor.desc")

	var rows []versionRow
	if err := s.get(ctx, "story_versions", query, &rows); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	out := make([]domain.NarrativeVersion, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.NarrativeVersion{
			StoryID:   row.StoryID,
			Major:     row.Major,
			Minor:     row.Minor,
			Narrative: row.Narrative,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// storyLock returns the mutex serializing appends for one story. The map
// only ever grows; entries are a single mutex each and stories are few per
// process lifetime.
func (s *SupabaseStore) storyLock(storyID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[storyID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[storyID] = lock
	}
	return lock
}

func (s *SupabaseStore) get(ctx context.Context, collection string, query url.Values, out any) error {
	endpoint := fmt.Sprintf("%s%s/%s?%s", s.baseURL, restPrefix, collection, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrStoreUnavailable, err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", domain.ErrStoreUnavailable, collection, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domain.ErrStoreUnavailable, collection, err)
	}
	return nil
}

func (s *SupabaseStore) insert(ctx context.Context, collection string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal %s row: %v", domain.ErrStoreUnavailable, collection, err)
	}
	endpoint := fmt.Sprintf("%s%s/%s", s.baseURL, restPrefix, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrStoreUnavailable, err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: insert into %s returned status %d: %s",
			domain.ErrStoreUnavailable, collection, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
