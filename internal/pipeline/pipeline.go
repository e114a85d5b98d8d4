package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"alphapulse/internal/artifact"
	"alphapulse/internal/klines"
	"alphapulse/internal/repository"
	"alphapulse/internal/storage"
	"alphapulse/internal/tournament"
)

// SeriesFetcher yields one token's aggregated risk series; implemented by
// the klines client, stubbed in tests.
type SeriesFetcher interface {
	FetchRiskSeries(ctx context.Context, tok tournament.ActiveToken) ([]klines.RiskPoint, error)
}

// Limiter gates upstream requests across workers.
type Limiter interface {
	Wait(ctx context.Context) error
}

const (
	jsonContentType   = "application/json"
	noCacheDirectives = "no-cache, no-store, must-revalidate"
)

// Pipeline wires the record source, classifier, market-data client and
// object store into the two batch flows: active refresh and history
// migration.
type Pipeline struct {
	Repo       repository.TournamentRepository
	Series     SeriesFetcher
	Store      storage.ObjectStore
	Limiter    Limiter
	Classifier *tournament.Classifier
	Logger     *zap.Logger

	// Workers bounds the fetch fan-out; <=1 reproduces strictly
	// sequential processing. Politeness comes from the shared Limiter
	// either way.
	Workers    int
	Note       string
	ActiveKey  string
	HistoryKey string
}

type RefreshResult struct {
	Stats       tournament.ActiveStats `json:"stats"`
	Published   int                    `json:"published"`
	NoData      int                    `json:"no_data"`
	FetchErrors int                    `json:"fetch_errors"`
	Bytes       int                    `json:"bytes"`
	Elapsed     string                 `json:"elapsed"`
}

type HistoryResult struct {
	Stats   tournament.HistoryStats `json:"stats"`
	Entries int                     `json:"entries"`
	Bytes   int                     `json:"bytes"`
	Elapsed string                  `json:"elapsed"`
}

// Refresh runs the active-artifact flow to completion: classify, fetch and
// aggregate per token, assemble, publish once.
//
// A record-source failure aborts the run with no artifact. Per-token
// failures only drop that token. A publish failure is returned after the
// full assembly, leaving the previous artifact live.
func (p *Pipeline) Refresh(ctx context.Context) (RefreshResult, error) {
	started := time.Now()
	var res RefreshResult

	records, err := p.Repo.ListTournaments(ctx)
	if err != nil {
		return res, fmt.Errorf("list tournaments: %w", err)
	}

	tokens, stats := p.Classifier.ClassifyActive(records)
	res.Stats = stats
	if len(tokens) == 0 {
		p.logInfo("empty active set, previous artifact left in place",
			zap.Int("scanned", stats.Scanned))
		res.Elapsed = time.Since(started).String()
		return res, nil
	}

	art := artifact.NewActive(p.Note, time.Now())

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan tournament.ActiveToken)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tok := range jobs {
				if p.Limiter != nil {
					if err := p.Limiter.Wait(ctx); err != nil {
						return
					}
				}
				points, err := p.Series.FetchRiskSeries(ctx, tok)

				mu.Lock()
				switch {
				case err != nil:
					res.FetchErrors++
					p.logWarn("token fetch failed", zap.String("symbol", tok.Symbol), zap.Error(err))
				case !art.Add(tok, points):
					res.NoData++
					p.logInfo("no data", zap.String("symbol", tok.Symbol))
				default:
					res.Published++
					p.logInfo("token aggregated",
						zap.String("symbol", tok.Symbol), zap.Int("hours", len(points)))
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, tok := range tokens {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- tok:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	body, err := art.Encode()
	if err != nil {
		return res, fmt.Errorf("encode artifact: %w", err)
	}
	res.Bytes = len(body)

	if err := p.Store.Put(ctx, p.ActiveKey, body, storage.PutOptions{
		ContentType:  jsonContentType,
		CacheControl: noCacheDirectives,
	}); err != nil {
		return res, fmt.Errorf("publish %s: %w", p.ActiveKey, err)
	}

	res.Elapsed = time.Since(started).String()
	p.logInfo("refresh published",
		zap.String("key", p.ActiveKey),
		zap.Int("tokens", res.Published),
		zap.Int("no_data", res.NoData),
		zap.Int("fetch_errors", res.FetchErrors),
		zap.Int("bytes", res.Bytes),
		zap.String("elapsed", res.Elapsed))
	return res, nil
}

// MigrateHistory runs the history flow: classify the full record set in
// historical mode and overwrite the finalized snapshot. An empty result
// publishes nothing.
func (p *Pipeline) MigrateHistory(ctx context.Context) (HistoryResult, error) {
	started := time.Now()
	var res HistoryResult

	records, err := p.Repo.ListTournaments(ctx)
	if err != nil {
		return res, fmt.Errorf("list tournaments: %w", err)
	}

	entries, stats := p.Classifier.ClassifyHistory(records)
	res.Stats = stats
	res.Entries = len(entries)
	if len(entries) == 0 {
		p.logWarn("no finalized tournaments found, nothing published")
		res.Elapsed = time.Since(started).String()
		return res, nil
	}

	body, err := artifact.EncodeHistory(entries)
	if err != nil {
		return res, fmt.Errorf("encode history: %w", err)
	}
	res.Bytes = len(body)

	if err := p.Store.Put(ctx, p.HistoryKey, body, storage.PutOptions{
		ContentType: jsonContentType,
	}); err != nil {
		return res, fmt.Errorf("publish %s: %w", p.HistoryKey, err)
	}

	res.Elapsed = time.Since(started).String()
	p.logInfo("history published",
		zap.String("key", p.HistoryKey),
		zap.Int("standard", stats.Standard),
		zap.Int("legacy", stats.Legacy),
		zap.Int("bytes", res.Bytes),
		zap.String("elapsed", res.Elapsed))
	return res, nil
}

func (p *Pipeline) logInfo(msg string, fields ...zap.Field) {
	if p.Logger != nil {
		p.Logger.Info(msg, fields...)
	}
}

func (p *Pipeline) logWarn(msg string, fields ...zap.Field) {
	if p.Logger != nil {
		p.Logger.Warn(msg, fields...)
	}
}
