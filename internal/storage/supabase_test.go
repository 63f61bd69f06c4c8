package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"autostory/internal/domain"
)

// fakeRest emulates the PostgREST surface the store depends on: filtered,
// ordered, limited reads and plain inserts on three collections.
type fakeRest struct {
	mu       sync.Mutex
	stories  []map[string]any
	inputs   []map[string]any
	versions []versionRow
	inserts  map[string]int
	apiKey   string
}

func newFakeRest(t *testing.T) *fakeRest {
	t.Helper()
	return &fakeRest{inserts: make(map[string]int), apiKey: "svc-key"}
}

func (f *fakeRest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != f.apiKey || r.Header.Get("Authorization") != "Bearer "+f.apiKey {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}
	collection := strings.TrimPrefix(r.URL.Path, "/rest/v1/")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		f.inserts[collection]++
		body, _ := io.ReadAll(r.Body)
		switch collection {
		case "stories":
			var row map[string]any
			_ = json.Unmarshal(body, &row)
			f.stories = append(f.stories, row)
		case "inputs":
			var row map[string]any
			_ = json.Unmarshal(body, &row)
			f.inputs = append(f.inputs, row)
		case "story_versions":
			var row versionRow
			_ = json.Unmarshal(body, &row)
			row.CreatedAt = time.Now().UTC().Format(time.RFC3339)
			f.versions = append(f.versions, row)
		default:
			http.Error(w, "unknown collection", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		if collection != "story_versions" {
			http.Error(w, "unknown collection", http.StatusNotFound)
			return
		}
		rows := f.filterVersions(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *fakeRest) filterVersions(q map[string][]string) []versionRow {
	rows := make([]versionRow, 0)
	filter := ""
	if v, ok := q["story_id"]; ok {
		filter = strings.TrimPrefix(v[0], "eq.")
	}
	for _, row := range f.versions {
		if filter == "" || row.StoryID == filter {
			rows = append(rows, row)
		}
	}
	// The store always asks for major.desc,minor.desc.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Major != rows[j].Major {
			return rows[i].Major > rows[j].Major
		}
		return rows[i].Minor > rows[j].Minor
	})
	if v, ok := q["limit"]; ok && v[0] == "1" && len(rows) > 1 {
		rows = rows[:1]
	}
	return rows
}

func newTestStore(t *testing.T) (*SupabaseStore, *fakeRest) {
	t.Helper()
	fake := newFakeRest(t)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store := NewSupabaseStore(Options{
		BaseURL: srv.URL,
		APIKey:  "svc-key",
		Logger:  zerolog.New(io.Discard),
	})
	return store, fake
}

func testRecord(storyID string) domain.InputRecord {
	return domain.InputRecord{
		StoryID:  storyID,
		UserText: "una idea",
		Format:   domain.FormatPostSocial,
		Tone:     domain.ToneInspiracional,
	}
}

func TestCreateStoryWritesAllThreeRows(t *testing.T) {
	store, fake := newTestStore(t)

	if err := store.CreateStory(context.Background(), testRecord("sto_abc123def456"), "narrativa"); err != nil {
		t.Fatalf("CreateStory returned error: %v", err)
	}

	if fake.inserts["stories"] != 1 || fake.inserts["inputs"] != 1 || fake.inserts["story_versions"] != 1 {
		t.Fatalf("insert counts = %#v", fake.inserts)
	}
	v := fake.versions[0]
	if v.Major != 1 || v.Minor != 0 {
		t.Fatalf("first version = %d.%d, want 1.0", v.Major, v.Minor)
	}
	if v.Narrative != "narrativa" {
		t.Fatalf("narrative = %q", v.Narrative)
	}
}

func TestCreateStoryMajorIsPerStory(t *testing.T) {
	store, fake := newTestStore(t)

	for _, id := range []string{"sto_aaaaaaaaaaaa", "sto_bbbbbbbbbbbb", "sto_cccccccccccc"} {
		if err := store.CreateStory(context.Background(), testRecord(id), "n"); err != nil {
			t.Fatalf("CreateStory(%s) returned error: %v", id, err)
		}
	}
	for _, v := range fake.versions {
		if v.Major != 1 || v.Minor != 0 {
			t.Fatalf("story %s starts at %d.%d, want 1.0", v.StoryID, v.Major, v.Minor)
		}
	}
}

func TestAppendMinorRevisionSequencing(t *testing.T) {
	store, fake := newTestStore(t)
	const storyID = "sto_123456789abc"

	if err := store.CreateStory(context.Background(), testRecord(storyID), "v1.0"); err != nil {
		t.Fatalf("CreateStory returned error: %v", err)
	}

	for i := 1; i <= 5; i++ {
		v, err := store.AppendMinorRevision(context.Background(), storyID, fmt.Sprintf("edición %d", i))
		if err != nil {
			t.Fatalf("AppendMinorRevision #%d returned error: %v", i, err)
		}
		if v.Major != 1 || v.Minor != i {
			t.Fatalf("revision #%d = %s, want 1.%d", i, v, i)
		}
	}

	if len(fake.versions) != 6 {
		t.Fatalf("stored %d versions, want 6", len(fake.versions))
	}
}

func TestAppendMinorRevisionUnknownStory(t *testing.T) {
	store, fake := newTestStore(t)

	_, err := store.AppendMinorRevision(context.Background(), "sto_missing00000", "texto")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if fake.inserts["story_versions"] != 0 {
		t.Fatalf("append on unknown story performed %d writes", fake.inserts["story_versions"])
	}
}

func TestAppendMinorRevisionSerializesPerStory(t *testing.T) {
	store, fake := newTestStore(t)
	const storyID = "sto_def123456789"

	if err := store.CreateStory(context.Background(), testRecord(storyID), "base"); err != nil {
		t.Fatalf("CreateStory returned error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AppendMinorRevision(context.Background(), storyID, "edición concurrente"); err != nil {
				t.Errorf("concurrent append failed: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, v := range fake.versions {
		key := fmt.Sprintf("%d.%d", v.Major, v.Minor)
		if seen[key] {
			t.Fatalf("duplicate version pair %s", key)
		}
		seen[key] = true
	}
	if len(fake.versions) != 9 {
		t.Fatalf("stored %d versions, want 9", len(fake.versions))
	}
}

func TestListVersionsNewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	const storyID = "sto_fedcba987654"

	if err := store.CreateStory(context.Background(), testRecord(storyID), "v1.0"); err != nil {
		t.Fatalf("CreateStory returned error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.AppendMinorRevision(context.Background(), storyID, "edit"); err != nil {
			t.Fatalf("AppendMinorRevision returned error: %v", err)
		}
	}

	versions, err := store.ListVersions(context.Background(), storyID)
	if err != nil {
		t.Fatalf("ListVersions returned error: %v", err)
	}
	if len(versions) != 4 {
		t.Fatalf("got %d versions, want 4", len(versions))
	}
	for i, v := range versions {
		wantMinor := 3 - i
		if v.Major != 1 || v.Minor != wantMinor {
			t.Fatalf("versions[%d] = %d.%d, want 1.%d", i, v.Major, v.Minor, wantMinor)
		}
		if v.CreatedAt == "" {
			t.Fatalf("versions[%d] missing created_at", i)
		}
	}
}

func TestListVersionsUnknownStoryIsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	versions, err := store.ListVersions(context.Background(), "sto_000000000000")
	if err != nil {
		t.Fatalf("ListVersions returned error: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("got %d versions, want 0", len(versions))
	}
}

func TestUnconfiguredStoreDegradesAsymmetrically(t *testing.T) {
	store := NewSupabaseStore(Options{Logger: zerolog.New(io.Discard)})

	// Creation silently degrades.
	if err := store.CreateStory(context.Background(), testRecord("sto_abcabcabcabc"), "n"); err != nil {
		t.Fatalf("CreateStory on unconfigured store = %v, want nil", err)
	}

	// Append and list fail loudly.
	if _, err := store.AppendMinorRevision(context.Background(), "sto_abcabcabcabc", "n"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("append err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := store.ListVersions(context.Background(), "sto_abcabcabcabc"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("list err = %v, want ErrStoreUnavailable", err)
	}
}
