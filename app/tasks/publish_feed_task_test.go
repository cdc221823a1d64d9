package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/sec-comb/app/feed"
	"github.com/lysyi3m/sec-comb/app/filing"
	"github.com/lysyi3m/sec-comb/app/history"
	"github.com/lysyi3m/sec-comb/app/sec"
	"github.com/mmcdole/gofeed"
)

var testNow = time.Date(2024, 5, 3, 18, 0, 0, 0, time.UTC)

type testEnv struct {
	dataDir  string
	feedPath string
	store    *history.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	feedPath := filepath.Join(dir, "public", "feed.xml")
	return &testEnv{
		dataDir:  dataDir,
		feedPath: feedPath,
		store:    history.NewStore(dataDir, feedPath),
	}
}

func (e *testEnv) newTask(t *testing.T, apiURL string, timeout time.Duration, maxItems int) *PublishFeedTask {
	t.Helper()

	rules := filing.DefaultRules()
	classifier, err := filing.NewClassifier(rules, filing.NewTextExtractor())
	if err != nil {
		t.Fatal(err)
	}

	client := sec.NewClient(&http.Client{}, sec.Options{
		URL:        apiURL,
		APIKey:     "secret-key",
		AuthScheme: "bearer",
		UserAgent:  "sec-comb-test/1.0",
		Timeout:    timeout,
	})

	generator := feed.NewGenerator(feed.Channel{
		Title:       "SEC Comb",
		Link:        "https://www.sec.gov/",
		Description: "test",
		Generator:   "SEC-Comb/test",
	})

	task := NewPublishFeedTask(sec.NewQueryBuilder(rules, 24*time.Hour, 100), client, classifier,
		generator, feed.NewVerifier(), e.store, maxItems)
	task.now = func() time.Time { return testNow }
	return task
}

func (e *testEnv) readFiles(t *testing.T) ([]byte, []byte) {
	t.Helper()
	feedData, _ := os.ReadFile(e.feedPath)
	historyData, _ := os.ReadFile(e.store.HistoryPath())
	return feedData, historyData
}

func form4Filing(id string, filedAt time.Time, code string) map[string]any {
	return map[string]any{
		"accessionNo":         id,
		"formType":            "4",
		"companyName":         "Company " + id,
		"filedAt":             filedAt.Format(time.RFC3339),
		"linkToFilingDetails": "https://www.sec.gov/Archives/" + id + "-index.htm",
		"transactions":        []map[string]string{{"transactionCode": code}},
	}
}

// newAPIServer answers form 4 queries with form4 filings and 8-K queries with eightK filings.
func newAPIServer(t *testing.T, form4, eightK []map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		body, _ := io.ReadAll(r.Body)
		var query sec.Query
		if err := json.Unmarshal(body, &query); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		filings := eightK
		if strings.Contains(query.Query, `formType:"4"`) {
			filings = form4
		}
		if filings == nil {
			filings = []map[string]any{}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"total":   map[string]int{"value": len(filings)},
			"filings": filings,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func parseFeed(t *testing.T, data []byte) *gofeed.Feed {
	t.Helper()
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Expected feed to parse, got: %v", err)
	}
	return parsed
}

func TestExecute_FirstRunPublishesSingleFiling(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t, []map[string]any{form4Filing("0001-A", testNow.Add(-time.Hour), "A")}, nil)

	task := env.newTask(t, server.URL+"/query", 5*time.Second, 100)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	feedData, _ := env.readFiles(t)
	parsed := parseFeed(t, feedData)
	if len(parsed.Items) != 1 {
		t.Fatalf("Expected exactly one item, got %d", len(parsed.Items))
	}
	if parsed.Items[0].GUID != "0001-A" {
		t.Errorf("Expected item GUID '0001-A', got '%s'", parsed.Items[0].GUID)
	}

	state, err := env.store.Load()
	if err != nil {
		t.Fatalf("Expected no error loading history, got: %v", err)
	}
	seen := state.Seen()
	if len(seen) != 1 || !seen.Contains("0001-A") {
		t.Errorf("Expected history {0001-A}, got %v", seen)
	}

	if task.Result.New != 1 || task.Result.Published != 1 {
		t.Errorf("Unexpected result: %+v", task.Result)
	}
}

func TestExecute_OnlyNewFilingsAreAdded(t *testing.T) {
	env := newTestEnv(t)

	first := newAPIServer(t, []map[string]any{form4Filing("0001-A", testNow.Add(-2*time.Hour), "P")}, nil)
	if err := env.newTask(t, first.URL+"/query", 5*time.Second, 100).Execute(context.Background()); err != nil {
		t.Fatalf("Expected first run to succeed, got: %v", err)
	}

	second := newAPIServer(t, []map[string]any{
		form4Filing("0001-A", testNow.Add(-2*time.Hour), "P"),
		form4Filing("0002-B", testNow.Add(-time.Hour), "A"),
	}, nil)
	task := env.newTask(t, second.URL+"/query", 5*time.Second, 100)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected second run to succeed, got: %v", err)
	}

	if task.Result.New != 1 {
		t.Errorf("Expected exactly one new filing, got %d", task.Result.New)
	}

	state, err := env.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Records) != 2 {
		t.Fatalf("Expected 2 records in history, got %d", len(state.Records))
	}

	feedData, historyData := env.readFiles(t)
	if count := strings.Count(string(historyData), `"id":"0001-A"`); count != 1 {
		t.Errorf("Expected 0001-A once in history, got %d", count)
	}

	parsed := parseFeed(t, feedData)
	if len(parsed.Items) != 2 {
		t.Fatalf("Expected 2 feed items, got %d", len(parsed.Items))
	}
	if parsed.Items[0].GUID != "0002-B" || parsed.Items[1].GUID != "0001-A" {
		t.Errorf("Expected newest-first [0002-B 0001-A], got [%s %s]", parsed.Items[0].GUID, parsed.Items[1].GUID)
	}
}

func TestExecute_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t,
		[]map[string]any{form4Filing("0001-A", testNow.Add(-time.Hour), "A")},
		[]map[string]any{{
			"accessionNo": "0003-C",
			"formType":    "8-K",
			"companyName": "Globex",
			"filedAt":     testNow.Add(-3 * time.Hour).Format(time.RFC3339),
			"linkToHtml":  "https://www.sec.gov/Archives/0003-C.htm",
			"items":       []string{"Item 1.01: Entry into a Material Definitive Agreement"},
		}})

	if err := env.newTask(t, server.URL+"/query", 5*time.Second, 100).Execute(context.Background()); err != nil {
		t.Fatalf("Expected first run to succeed, got: %v", err)
	}
	feedBefore, historyBefore := env.readFiles(t)

	task := env.newTask(t, server.URL+"/query", 5*time.Second, 100)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected second run to succeed, got: %v", err)
	}
	feedAfter, historyAfter := env.readFiles(t)

	if task.Result.New != 0 {
		t.Errorf("Expected no new filings on second run, got %d", task.Result.New)
	}
	if !bytes.Equal(feedBefore, feedAfter) {
		t.Error("feed.xml should be unchanged when there are no new filings")
	}
	if !bytes.Equal(historyBefore, historyAfter) {
		t.Error("History should be unchanged when there are no new filings")
	}
}

func TestExecute_TimeoutLeavesFilesUntouched(t *testing.T) {
	env := newTestEnv(t)

	seed := newAPIServer(t, []map[string]any{form4Filing("0001-A", testNow.Add(-time.Hour), "A")}, nil)
	if err := env.newTask(t, seed.URL+"/query", 5*time.Second, 100).Execute(context.Background()); err != nil {
		t.Fatalf("Expected seed run to succeed, got: %v", err)
	}
	feedBefore, historyBefore := env.readFiles(t)

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	err := env.newTask(t, slow.URL+"/query", 50*time.Millisecond, 100).Execute(context.Background())
	if !errors.Is(err, sec.ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got: %v", err)
	}

	feedAfter, historyAfter := env.readFiles(t)
	if !bytes.Equal(feedBefore, feedAfter) {
		t.Error("feed.xml should be byte-identical after a failed run")
	}
	if !bytes.Equal(historyBefore, historyAfter) {
		t.Error("History should be byte-identical after a failed run")
	}
}

func TestExecute_APIErrorOnFirstRunWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	err := env.newTask(t, server.URL+"/query", 5*time.Second, 100).Execute(context.Background())
	if !errors.Is(err, sec.ErrAPI) {
		t.Fatalf("Expected ErrAPI, got: %v", err)
	}

	if _, err := os.Stat(env.feedPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("feed.xml should not be created by a failed run")
	}
	if _, err := os.Stat(env.store.HistoryPath()); !errors.Is(err, os.ErrNotExist) {
		t.Error("History should not be created by a failed run")
	}
}

func TestExecute_RespectsFeedCap(t *testing.T) {
	env := newTestEnv(t)

	var filings []map[string]any
	for i := 0; i < 5; i++ {
		filings = append(filings, form4Filing(fmt.Sprintf("000%d-X", i), testNow.Add(-time.Duration(i+1)*time.Hour), "P"))
	}
	server := newAPIServer(t, filings, nil)

	task := env.newTask(t, server.URL+"/query", 5*time.Second, 3)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	feedData, _ := env.readFiles(t)
	parsed := parseFeed(t, feedData)
	if len(parsed.Items) != 3 {
		t.Errorf("Expected feed capped at 3 items, got %d", len(parsed.Items))
	}

	state, err := env.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Records) != 5 {
		t.Errorf("Expected every filing in history, got %d", len(state.Records))
	}
}

func TestExecute_SkipsNonBullishFilings(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t,
		[]map[string]any{form4Filing("0001-S", testNow.Add(-time.Hour), "S")},
		[]map[string]any{{
			"accessionNo": "0002-K",
			"formType":    "8-K",
			"companyName": "Initech",
			"filedAt":     testNow.Add(-time.Hour).Format(time.RFC3339),
			"linkToHtml":  "https://www.sec.gov/Archives/0002-K.htm",
			"description": "Departure of Directors",
		}})

	task := env.newTask(t, server.URL+"/query", 5*time.Second, 100)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if task.Result.Fetched != 2 || task.Result.Kept != 0 {
		t.Errorf("Expected 2 fetched and 0 kept, got %+v", task.Result)
	}

	feedData, _ := env.readFiles(t)
	if len(parseFeed(t, feedData).Items) != 0 {
		t.Error("Expected an empty feed")
	}
}

func TestStep(t *testing.T) {
	base := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	record := func(id string) filing.Record {
		return filing.Record{ID: id, Company: "C", FormType: "4", FiledAt: base, Link: "https://x"}
	}

	prev := history.State{}.Merge([]filing.Record{record("0001-A")})
	next, added := Step(prev, []filing.Record{record("0001-A"), record("0002-B"), record("0002-B")})

	if len(added) != 1 || added[0].ID != "0002-B" {
		t.Errorf("Expected only 0002-B to be added, got %v", added)
	}

	seen := next.Seen()
	for id := range prev.Seen() {
		if !seen.Contains(id) {
			t.Errorf("Next state lost %s", id)
		}
	}
	for _, r := range added {
		if !seen.Contains(r.ID) {
			t.Errorf("Added record %s missing from next state", r.ID)
		}
	}
	if len(next.Records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(next.Records))
	}
	if len(prev.Records) != 1 {
		t.Error("Step should not modify the previous state")
	}
}

func TestNewTask(t *testing.T) {
	task := NewTask(TaskTypePublishFeed)

	if task.GetID() == "" {
		t.Error("Task should have an ID")
	}
	if task.GetType() != TaskTypePublishFeed {
		t.Errorf("Expected type %s, got %s", TaskTypePublishFeed, task.GetType())
	}
	if task.GetDuration() != 0 {
		t.Error("Duration should be zero before Start")
	}

	task.Start()
	if task.StartedAt == nil {
		t.Error("Start should record the start time")
	}
}
