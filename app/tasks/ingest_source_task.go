package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/news-comb/app/dedup"
	"github.com/lysyi3m/news-comb/app/news"
	"github.com/lysyi3m/news-comb/app/source"
)

// IngestSourceTask runs fetch, parse, filter and dedup/store for one
// source and reports a single Outcome. It never returns an error: per
// source failures stay inside the Outcome.
type IngestSourceTask struct {
	Task
	Source   source.Descriptor
	fetcher  Fetcher
	parser   Parser
	filterer *news.Filterer
	resolver Resolver
}

func NewIngestSourceTask(desc source.Descriptor, fetcher Fetcher, parser Parser, filterer *news.Filterer, resolver Resolver) *IngestSourceTask {
	return &IngestSourceTask{
		Task:     NewTask(TaskTypeIngestSource, desc.ID),
		Source:   desc,
		fetcher:  fetcher,
		parser:   parser,
		filterer: filterer,
		resolver: resolver,
	}
}

func (t *IngestSourceTask) Execute(ctx context.Context) Outcome {
	t.Start()

	outcome := Outcome{
		DispatchID: t.ID,
		SourceID:   t.SourceID,
		StartedAt:  *t.StartedAt,
	}
	finish := func(status Status, err error) Outcome {
		outcome.Status = status
		outcome.Err = err
		outcome.Duration = t.GetDuration()
		return outcome
	}

	if ctx.Err() != nil {
		return finish(StatusCancelled, ctx.Err())
	}

	payload, err := t.fetcher.Fetch(ctx, t.Source)
	if err != nil {
		if ctx.Err() != nil {
			return finish(StatusCancelled, ctx.Err())
		}
		return finish(StatusFailed, fmt.Errorf("failed to fetch source: %w", err))
	}

	outcome.ETag = payload.ETag
	outcome.LastModified = payload.LastModified

	if payload.NotModified {
		outcome.NotModified = true
		slog.Debug("Source not modified", "source", t.SourceID)
		return finish(StatusSuccess, nil)
	}

	articles, err := t.parser.Run(t.Source, payload)
	if err != nil {
		return finish(StatusFailed, fmt.Errorf("failed to parse source: %w", err))
	}

	articles, outcome.Filtered = t.filterer.Run(articles, t.Source.Filters)

	// Each upsert commits on its own. On cancellation the articles already
	// stored stay stored and the rest are skipped; the next dispatch
	// resolves the stored ones as DuplicateExact.
	var lastErr error
	for _, article := range articles {
		if ctx.Err() != nil {
			return finish(StatusCancelled, ctx.Err())
		}

		decision, _, err := t.resolver.Resolve(ctx, article)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StatusCancelled, ctx.Err())
			}
			outcome.Failed++
			lastErr = err
			slog.Warn("Failed to store article", "source", t.SourceID, "fingerprint", article.Fingerprint, "error", err)
			continue
		}

		switch decision {
		case dedup.New:
			outcome.New++
		case dedup.DuplicateUpdated:
			outcome.Updated++
		case dedup.DuplicateExact:
			outcome.Duplicate++
		}
	}

	switch {
	case outcome.Failed == 0:
		return finish(StatusSuccess, nil)
	case outcome.New+outcome.Updated+outcome.Duplicate > 0:
		return finish(StatusPartial, fmt.Errorf("%d of %d articles failed to store: %w", outcome.Failed, len(articles), lastErr))
	default:
		return finish(StatusFailed, fmt.Errorf("all %d articles failed to store: %w", outcome.Failed, lastErr))
	}
}
