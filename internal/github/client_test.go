package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repostats/internal/cache"
	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/logging"
)

type issueJSON struct {
	Number      int               `json:"number"`
	Title       string            `json:"title"`
	State       string            `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	ClosedAt    *time.Time        `json:"closed_at"`
	PullRequest map[string]string `json:"pull_request,omitempty"`
}

// fakeGitHub serves issues 1..25 with #5 deleted, 10 per page.
type fakeGitHub struct {
	server   *httptest.Server
	pages    []int
	repoCode int
	listCode int
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	f := &fakeGitHub{repoCode: http.StatusOK, listCode: http.StatusOK}

	var items []issueJSON
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for n := 1; n <= 25; n++ {
		if n == 5 {
			continue
		}
		it := issueJSON{
			Number:    n,
			Title:     fmt.Sprintf("#%d", n),
			State:     "open",
			CreatedAt: base.Add(time.Duration(n) * time.Hour),
		}
		if n%4 == 0 {
			it.PullRequest = map[string]string{"url": "https://example.invalid/pulls/" + strconv.Itoa(n)}
		}
		if n%3 == 0 {
			closed := it.CreatedAt.Add(time.Hour)
			it.ClosedAt = &closed
			it.State = "closed"
		}
		items = append(items, it)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r", func(w http.ResponseWriter, r *http.Request) {
		if f.repoCode != http.StatusOK {
			http.Error(w, `{"message":"nope"}`, f.repoCode)
			return
		}
		fmt.Fprint(w, `{"full_name":"o/r","html_url":"https://github.com/o/r","open_issues_count":7}`)
	})
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		assert.Equal(t, "asc", r.URL.Query().Get("direction"))
		if f.listCode != http.StatusOK {
			http.Error(w, `{"message":"boom"}`, f.listCode)
			return
		}

		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 0 {
			page = 1
		}
		f.pages = append(f.pages, page)

		start := (page - 1) * perPage
		end := start + perPage
		if start > len(items) {
			start = len(items)
		}
		if end > len(items) {
			end = len(items)
		}
		if end < len(items) {
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/o/r/issues?page=%d>; rel="next"`, f.server.URL, page+1))
		}
		assert.NoError(t, json.NewEncoder(w).Encode(items[start:end]))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) client(t *testing.T) *Client {
	c, err := NewClient(Options{
		Token:     "test-token",
		RateLimit: 1000,
		PerPage:   10,
		BaseURL:   f.server.URL,
	}, logging.Discard())
	require.NoError(t, err)
	return c
}

func collect(t *testing.T, src cache.Source, after int) ([]cache.Entry, error) {
	t.Helper()
	var got []cache.Entry
	err := src.ItemsAfter(context.Background(), after, func(e cache.Entry) error {
		got = append(got, e)
		return nil
	})
	return got, err
}

func TestItemsAfter_FromScratch(t *testing.T) {
	f := newFakeGitHub(t)

	got, err := collect(t, f.client(t).Items("o", "r"), 0)
	require.NoError(t, err)
	require.Len(t, got, 24)
	assert.Equal(t, []int{1, 2, 3}, f.pages)

	assert.Equal(t, 1, got[0].Number)
	assert.Equal(t, 6, got[4].Number)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Number, got[i-1].Number)
	}

	byNumber := map[int]cache.Entry{}
	for _, e := range got {
		byNumber[e.Number] = e
	}
	assert.True(t, byNumber[4].IsPR)
	assert.False(t, byNumber[3].IsPR)
	require.NotNil(t, byNumber[3].ClosedAt)
	assert.Equal(t, "closed", byNumber[3].State)
	assert.Nil(t, byNumber[7].ClosedAt)
}

func TestItemsAfter_BacktracksPastDeletedNumbers(t *testing.T) {
	f := newFakeGitHub(t)

	got, err := collect(t, f.client(t).Items("o", "r"), 20)
	require.NoError(t, err)

	var numbers []int
	for _, e := range got {
		numbers = append(numbers, e.Number)
	}
	assert.Equal(t, []int{21, 22, 23, 24, 25}, numbers)
	// page 3 starts at #22, so page 2 is read as well
	assert.Equal(t, []int{3, 2, 3}, f.pages)
}

func TestItemsAfter_NothingNew(t *testing.T) {
	f := newFakeGitHub(t)

	got, err := collect(t, f.client(t).Items("o", "r"), 25)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestItemsAfter_CallbackErrorStops(t *testing.T) {
	f := newFakeGitHub(t)

	calls := 0
	err := f.client(t).Items("o", "r").ItemsAfter(context.Background(), 0, func(cache.Entry) error {
		calls++
		if calls == 3 {
			return fmt.Errorf("disk full")
		}
		return nil
	})
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 3, calls)
}

func TestResolve(t *testing.T) {
	f := newFakeGitHub(t)

	repo, err := f.client(t).Resolve(context.Background(), "o", "r")
	require.NoError(t, err)
	assert.Equal(t, "o/r", repo.FullName)
	assert.Equal(t, 7, repo.OpenIssues)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		repoCode int
		exit     int
	}{
		{"unauthorized", http.StatusUnauthorized, errors.ExitAuth},
		{"forbidden", http.StatusForbidden, errors.ExitAuth},
		{"not found", http.StatusNotFound, errors.ExitUsage},
		{"server error", http.StatusBadGateway, errors.ExitFetch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeGitHub(t)
			f.repoCode = tt.repoCode

			_, err := f.client(t).Resolve(context.Background(), "o", "r")
			require.Error(t, err)
			assert.Equal(t, tt.exit, errors.ExitCode(err))
		})
	}

	f := newFakeGitHub(t)
	f.listCode = http.StatusInternalServerError
	_, err := collect(t, f.client(t).Items("o", "r"), 0)
	require.Error(t, err)
	assert.Equal(t, errors.ExitFetch, errors.ExitCode(err))
}

func TestFetchIntoCache(t *testing.T) {
	f := newFakeGitHub(t)
	c := cache.New("", logging.Discard())

	res, err := cache.Fetch(context.Background(), c, f.client(t).Items("o", "r"), cache.FetchOptions{BatchSize: 10}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 24, res.New)
	assert.Equal(t, 25, c.HighWater())
	assert.Len(t, c.Spans(true), 6)
	assert.Len(t, c.Spans(false), 18)
}

func TestNewClient_BadBaseURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "://bad"}, logging.Discard())
	require.Error(t, err)
}
