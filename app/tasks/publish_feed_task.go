package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/sec-comb/app/feed"
	"github.com/lysyi3m/sec-comb/app/filing"
	"github.com/lysyi3m/sec-comb/app/history"
	"github.com/lysyi3m/sec-comb/app/sec"
)

// Searcher runs a single filings query.
type Searcher interface {
	Search(ctx context.Context, q sec.Query) ([]filing.Hit, error)
}

type Result struct {
	Fetched   int
	Kept      int
	New       int
	Total     int
	Published int
}

type PublishFeedTask struct {
	Task
	Result     Result
	queries    *sec.QueryBuilder
	searcher   Searcher
	classifier *filing.Classifier
	generator  *feed.Generator
	verifier   *feed.Verifier
	store      *history.Store
	maxItems   int
	now        func() time.Time
}

var _ TaskInterface = (*PublishFeedTask)(nil)

func NewPublishFeedTask(queries *sec.QueryBuilder, searcher Searcher, classifier *filing.Classifier,
	generator *feed.Generator, verifier *feed.Verifier, store *history.Store, maxItems int) *PublishFeedTask {
	return &PublishFeedTask{
		Task:       NewTask(TaskTypePublishFeed),
		queries:    queries,
		searcher:   searcher,
		classifier: classifier,
		generator:  generator,
		verifier:   verifier,
		store:      store,
		maxItems:   maxItems,
		now:        time.Now,
	}
}

// Step is the pure core of a run: given the persisted state and the
// bullish filings fetched this run, it returns the next state and the
// records that were not seen before.
func Step(prev history.State, fetched []filing.Record) (history.State, []filing.Record) {
	added := feed.NewDeduplicator().Run(fetched, prev.Seen())
	return prev.Merge(added), added
}

// Execute loads the history, queries the API, and commits the new
// history and feed. Nothing on disk changes unless every step succeeds.
func (t *PublishFeedTask) Execute(ctx context.Context) error {
	t.Start()

	state, err := t.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	fetched, kept, err := t.fetch(ctx)
	if err != nil {
		return err
	}

	next, added := Step(state, kept)

	data, err := t.generator.Run(next.Records, t.maxItems)
	if err != nil {
		return fmt.Errorf("failed to render feed: %w", err)
	}

	count, err := t.verifier.Run(data)
	if err != nil {
		return fmt.Errorf("failed to verify feed: %w", err)
	}
	if expected := len(feed.Select(next.Records, t.maxItems)); count != expected {
		return fmt.Errorf("%w: rendered feed has %d items, want %d", feed.ErrRender, count, expected)
	}

	latest := feed.NewDeduplicator().Run(kept, filing.NewSeenSet())
	if err := t.store.Commit(next, data, latest); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	t.Result = Result{
		Fetched:   fetched,
		Kept:      len(latest),
		New:       len(added),
		Total:     len(next.Records),
		Published: count,
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"id", t.GetID(),
		"duration", t.GetDuration(),
		"fetched", t.Result.Fetched,
		"kept", t.Result.Kept,
		"new", t.Result.New,
		"history", t.Result.Total,
		"published", t.Result.Published)

	return nil
}

func (t *PublishFeedTask) fetch(ctx context.Context) (int, []filing.Record, error) {
	fetched := 0
	var kept []filing.Record

	for _, query := range t.queries.Run(t.now()) {
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		default:
		}

		hits, err := t.searcher.Search(ctx, query)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to run %s query: %w", query.Name, err)
		}
		fetched += len(hits)

		for _, hit := range hits {
			if record, ok := t.classifier.Run(hit); ok {
				kept = append(kept, record)
			} else {
				slog.Debug("Filing not bullish, skipping", "id", hit.ID, "form", hit.FormType)
			}
		}
	}

	return fetched, kept, nil
}
