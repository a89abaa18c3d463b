package feeds

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bibmerge/internal"
	"bibmerge/internal/config"
	"bibmerge/internal/logger"
	"bibmerge/internal/storage"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testClient(rt roundTripFunc) *Client {
	client := NewClient(config.Config{FeedRateLimitRPS: 1000, FeedTimeoutMs: 1000})
	client.httpClient = &http.Client{Transport: rt}
	client.backoff = func(int) time.Duration { return time.Millisecond }
	return client
}

const feedBody = `<ONIXmessage><product><a001>1</a001></product></ONIXmessage>`

func TestFetchRetriesTransientStatus(t *testing.T) {
	attempt := 0
	client := testClient(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/feeds/lerner.xml" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		attempt++
		if attempt == 1 {
			return response(http.StatusServiceUnavailable, "busy"), nil
		}
		return response(http.StatusOK, feedBody), nil
	})

	body, err := client.Fetch(context.Background(), "https://example.test/feeds/lerner.xml")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != feedBody || attempt != 2 {
		t.Fatalf("attempt=%d body=%s", attempt, body)
	}
}

func TestFetchFailsFastOnClientError(t *testing.T) {
	attempt := 0
	client := testClient(func(r *http.Request) (*http.Response, error) {
		attempt++
		return response(http.StatusNotFound, "nope"), nil
	})

	if _, err := client.Fetch(context.Background(), "https://example.test/missing.xml"); err == nil {
		t.Fatal("expected error")
	}
	if attempt != 1 {
		t.Fatalf("attempt=%d", attempt)
	}
}

func TestSyncSkipsUnchangedFeed(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "library.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := config.Config{
		FeedDir:          filepath.Join(tmp, "feeds"),
		FeedSources:      map[string]string{"LERNER": "https://example.test/lerner.onix", "BROKEN": "https://example.test/broken"},
		FeedRateLimitRPS: 1000,
	}
	svc := NewSyncService(db, cfg, logger.Nop())
	svc.client = testClient(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/broken" {
			return response(http.StatusForbidden, "denied"), nil
		}
		return response(http.StatusOK, feedBody), nil
	})

	results, err := svc.SyncAll(context.Background())
	if err == nil {
		t.Fatal("expected broken feed error")
	}
	if len(results) != 1 || !results[0].Changed {
		t.Fatalf("results=%+v", results)
	}
	if results[0].Family != internal.FamilyTrade {
		t.Fatalf("family=%s", results[0].Family)
	}
	blob, err := os.ReadFile(filepath.Join(cfg.FeedDir, "LERNER.onix"))
	if err != nil || string(blob) != feedBody {
		t.Fatalf("blob=%s err=%v", blob, err)
	}

	again, err := svc.Sync(context.Background(), "LERNER", cfg.FeedSources["LERNER"])
	if err != nil {
		t.Fatal(err)
	}
	if again.Changed {
		t.Fatal("unchanged feed must not be rewritten")
	}
}
