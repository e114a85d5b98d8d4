package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"

	"alphapulse/internal/klines"
	"alphapulse/internal/models"
	"alphapulse/internal/storage"
	"alphapulse/internal/tournament"
)

type stubRepo struct {
	records []models.Tournament
	err     error
}

func (s *stubRepo) ListTournaments(ctx context.Context) ([]models.Tournament, error) {
	return s.records, s.err
}

type stubSeries struct {
	points map[string][]klines.RiskPoint
	errs   map[string]error
}

func (s *stubSeries) FetchRiskSeries(ctx context.Context, tok tournament.ActiveToken) ([]klines.RiskPoint, error) {
	if err := s.errs[tok.Symbol]; err != nil {
		return nil, err
	}
	return s.points[tok.Symbol], nil
}

type stubStore struct {
	mu   sync.Mutex
	body map[string][]byte
	opts map[string]storage.PutOptions
	err  error
}

func (s *stubStore) Put(ctx context.Context, key string, body []byte, opts storage.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.body == nil {
		s.body = map[string][]byte{}
		s.opts = map[string]storage.PutOptions{}
	}
	s.body[key] = body
	s.opts[key] = opts
	return nil
}

func fixedClassifier() *tournament.Classifier {
	return &tournament.Classifier{
		Now: func() time.Time {
			return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
		},
	}
}

func record(t *testing.T, id int64, name, contract string, meta map[string]any) models.Tournament {
	t.Helper()
	b, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	rec := models.Tournament{ID: id, Name: name, Data: datatypes.JSON(b)}
	if contract != "" {
		rec.Contract = &contract
	}
	return rec
}

func newPipeline(repo *stubRepo, series *stubSeries, store *stubStore) *Pipeline {
	return &Pipeline{
		Repo:       repo,
		Series:     series,
		Store:      store,
		Classifier: fixedClassifier(),
		Note:       "7 Days Limit",
		ActiveKey:  "competition-history.json",
		HistoryKey: "finalized_history.json",
	}
}

func TestRefreshOmitsTokensWithNoData(t *testing.T) {
	// A token that enters the active set but yields zero points must be
	// absent from the artifact's data map, not present with an empty array.
	repo := &stubRepo{records: []models.Tournament{
		record(t, 1, "FOO", "0xABC", map[string]any{"chainId": "1", "end": "2030-01-01"}),
	}}
	store := &stubStore{}
	pipe := newPipeline(repo, &stubSeries{}, store)

	res, err := pipe.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.NoData != 1 || res.Published != 0 {
		t.Fatalf("result = %+v", res)
	}

	var decoded struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(store.body["competition-history.json"], &decoded); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if _, ok := decoded.Data["0xabc"]; ok {
		t.Fatalf("zero-point token present in artifact")
	}
}

func TestRefreshPublishesAggregatedTokens(t *testing.T) {
	repo := &stubRepo{records: []models.Tournament{
		record(t, 1, "FOO", "0xABC", map[string]any{"chainId": "1"}),
		record(t, 2, "BAR", "0xDEF", map[string]any{"chainId": "56"}),
	}}
	series := &stubSeries{
		points: map[string][]klines.RiskPoint{
			"FOO": {{Timestamp: 1000, VolumeUSD: 50, TxCount: 3, Risk: 2}},
		},
		errs: map[string]error{"BAR": errors.New("upstream blocked")},
	}
	store := &stubStore{}
	pipe := newPipeline(repo, series, store)

	res, err := pipe.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Published != 1 || res.FetchErrors != 1 {
		t.Fatalf("result = %+v", res)
	}

	body := string(store.body["competition-history.json"])
	if !strings.Contains(body, `"0xabc":{"s":"FOO"`) {
		t.Fatalf("artifact missing aggregated token: %s", body)
	}
	if strings.Contains(body, "0xdef") {
		t.Fatalf("failed token leaked into artifact: %s", body)
	}

	opts := store.opts["competition-history.json"]
	if opts.ContentType != "application/json" {
		t.Fatalf("content type = %q", opts.ContentType)
	}
	if opts.CacheControl != "no-cache, no-store, must-revalidate" {
		t.Fatalf("cache control = %q", opts.CacheControl)
	}
}

func TestRefreshSourceErrorAborts(t *testing.T) {
	repo := &stubRepo{err: errors.New("db down")}
	store := &stubStore{}
	pipe := newPipeline(repo, &stubSeries{}, store)

	if _, err := pipe.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error on source failure")
	}
	if len(store.body) != 0 {
		t.Fatalf("artifact published despite source failure")
	}
}

func TestRefreshEmptyActiveSetPublishesNothing(t *testing.T) {
	repo := &stubRepo{records: []models.Tournament{
		record(t, 1, "GONE", "0xA", map[string]any{"chainId": "1", "end": "2020-01-01"}),
	}}
	store := &stubStore{}
	pipe := newPipeline(repo, &stubSeries{}, store)

	res, err := pipe.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Stats.Expired != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(store.body) != 0 {
		t.Fatalf("artifact published for empty active set")
	}
}

func TestRefreshPublishErrorSurfaces(t *testing.T) {
	repo := &stubRepo{records: []models.Tournament{
		record(t, 1, "FOO", "0xABC", map[string]any{"chainId": "1"}),
	}}
	series := &stubSeries{points: map[string][]klines.RiskPoint{
		"FOO": {{Timestamp: 1000, VolumeUSD: 1, TxCount: 1}},
	}}
	store := &stubStore{err: errors.New("bucket gone")}
	pipe := newPipeline(repo, series, store)

	if _, err := pipe.Refresh(context.Background()); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestRefreshParallelWorkers(t *testing.T) {
	records := []models.Tournament{
		record(t, 1, "A", "0xA", map[string]any{"chainId": "1"}),
		record(t, 2, "B", "0xB", map[string]any{"chainId": "1"}),
		record(t, 3, "C", "0xC", map[string]any{"chainId": "1"}),
	}
	series := &stubSeries{points: map[string][]klines.RiskPoint{
		"A": {{Timestamp: 1, VolumeUSD: 1, TxCount: 1}},
		"B": {{Timestamp: 2, VolumeUSD: 2, TxCount: 1}},
		"C": {{Timestamp: 3, VolumeUSD: 3, TxCount: 1}},
	}}
	store := &stubStore{}
	pipe := newPipeline(&stubRepo{records: records}, series, store)
	pipe.Workers = 4

	res, err := pipe.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Published != 3 {
		t.Fatalf("published=%d, want 3", res.Published)
	}
}

func TestMigrateHistoryPublishesFinalized(t *testing.T) {
	repo := &stubRepo{records: []models.Tournament{
		record(t, 1, "DONE", "", map[string]any{"alphaId": "ALPHA_1", "end": "2026-02-01"}),
		record(t, 7, "OLD", "", map[string]any{"end": "2025-06-01"}),
		record(t, 3, "LIVE", "", map[string]any{"end": "2030-01-01"}),
	}}
	store := &stubStore{}
	pipe := newPipeline(repo, &stubSeries{}, store)

	res, err := pipe.MigrateHistory(context.Background())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.Entries != 2 || res.Stats.Standard != 1 || res.Stats.Legacy != 1 {
		t.Fatalf("result = %+v", res)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(store.body["finalized_history.json"], &decoded); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if _, ok := decoded["ALPHA_1"]; !ok {
		t.Fatalf("standard entry missing: %v", decoded)
	}
	if decoded["legacy_7"]["alphaId"] != "legacy_7" {
		t.Fatalf("legacy entry malformed: %v", decoded["legacy_7"])
	}
	if _, ok := decoded["legacy_3"]; ok {
		t.Fatalf("active record migrated: %v", decoded)
	}
	if opts := store.opts["finalized_history.json"]; opts.CacheControl != "" {
		t.Fatalf("history artifact should not set cache control, got %q", opts.CacheControl)
	}
}

func TestMigrateHistoryEmptySkipsPublish(t *testing.T) {
	repo := &stubRepo{records: []models.Tournament{
		record(t, 3, "LIVE", "", map[string]any{"end": "2030-01-01"}),
	}}
	store := &stubStore{}
	pipe := newPipeline(repo, &stubSeries{}, store)

	res, err := pipe.MigrateHistory(context.Background())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.Entries != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(store.body) != 0 {
		t.Fatalf("empty history published")
	}
}
