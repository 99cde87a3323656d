package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/moonapi/internal/security"
)

// listingJSON はReddit検索APIの典型的なレスポンス。
const listingJSON = `{
	"kind": "Listing",
	"data": {
		"children": [
			{
				"kind": "t3",
				"data": {
					"id": "abc123",
					"title": "Go 1.25 released",
					"selftext": "The latest &amp; greatest release.",
					"subreddit": "golang",
					"score": 420,
					"num_comments": 37,
					"created_utc": 1756500000,
					"permalink": "/r/golang/comments/abc123/go_125_released/"
				}
			},
			{
				"kind": "t3",
				"data": {
					"id": "def456",
					"title": "Show and tell",
					"selftext": "",
					"subreddit": "programming",
					"score": 12,
					"num_comments": 3,
					"created_utc": 1700000000,
					"permalink": "/r/programming/comments/def456/show_and_tell/"
				}
			}
		]
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientConfig{
		BaseURL:   server.URL,
		UserAgent: "moonapi-test/1.0",
	}, server.Client(), security.NewContentSanitizer(), nil)
}

func TestSearch_MapsListingToPosts(t *testing.T) {
	var gotQuery, gotUserAgent, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listingJSON))
	})

	posts, err := client.Search(context.Background(), "golang", 25)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotPath != "/search.json" {
		t.Errorf("path = %q, want /search.json", gotPath)
	}
	if gotQuery != "limit=25&q=golang&raw_json=1" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotUserAgent != "moonapi-test/1.0" {
		t.Errorf("User-Agent = %q", gotUserAgent)
	}

	if len(posts) != 2 {
		t.Fatalf("len(posts) = %d, want 2", len(posts))
	}

	first := posts[0]
	if first.ID != "abc123" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.Title != "Go 1.25 released" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Subreddit != "golang" {
		t.Errorf("Subreddit = %q", first.Subreddit)
	}
	if first.Score != 420 || first.NumComments != 37 {
		t.Errorf("Score/NumComments = %d/%d", first.Score, first.NumComments)
	}
	// HTMLエンティティはサニタイズ後に復元される
	if first.Selftext != "The latest & greatest release." {
		t.Errorf("Selftext = %q", first.Selftext)
	}
	// レスポンス内のURLは検索に使ったホストではなく常に正規ホストを指す
	if first.URL != "https://www.reddit.com/r/golang/comments/abc123/go_125_released/" {
		t.Errorf("URL = %q", first.URL)
	}
}

func TestSearch_FormatsCreatedDateAsUTC(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingJSON))
	})

	posts, err := client.Search(context.Background(), "golang", 25)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// 1700000000 = 2023-11-14 22:13:20 UTC
	if posts[1].CreatedDate != "2023-11-14 22:13:20" {
		t.Errorf("CreatedDate = %q, want 2023-11-14 22:13:20", posts[1].CreatedDate)
	}
	if posts[1].CreatedUTC != 1700000000 {
		t.Errorf("CreatedUTC = %v", posts[1].CreatedUTC)
	}
}

func TestSearch_SanitizesSelftextHTML(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": {
				"children": [
					{"data": {
						"id": "x",
						"title": "t",
						"selftext": "<script>alert('x')</script>Hello <b>world</b>",
						"subreddit": "s",
						"score": 1,
						"num_comments": 0,
						"created_utc": 0,
						"permalink": "/r/s/x/"
					}}
				]
			}
		}`))
	})

	posts, err := client.Search(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if posts[0].Selftext != "Hello world" {
		t.Errorf("Selftext = %q, want %q", posts[0].Selftext, "Hello world")
	}
}

func TestSearch_EmptyListing_ReturnsEmptySlice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"children":[]}}`))
	})

	posts, err := client.Search(context.Background(), "nothing", 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// nilではなく空スライスを返す（JSONで[]にシリアライズされる）
	if posts == nil {
		t.Fatal("posts should be an empty slice, not nil")
	}
	if len(posts) != 0 {
		t.Errorf("len(posts) = %d, want 0", len(posts))
	}
}

func TestSearch_Non200Status_Fails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	if _, err := client.Search(context.Background(), "golang", 10); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestSearch_MalformedResponse_Fails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	})

	if _, err := client.Search(context.Background(), "golang", 10); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestSearch_NilSanitizer_KeepsSelftext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingJSON))
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{BaseURL: server.URL, UserAgent: "t"}, server.Client(), nil, nil)

	posts, err := client.Search(context.Background(), "golang", 25)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if posts[0].Selftext != "The latest &amp; greatest release." {
		t.Errorf("Selftext = %q", posts[0].Selftext)
	}
}
