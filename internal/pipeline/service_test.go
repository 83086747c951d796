package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/blindspot/internal/analytics"
	"horse.fit/blindspot/internal/arabic"
	"horse.fit/blindspot/internal/clusterer"
	"horse.fit/blindspot/internal/config"
	"horse.fit/blindspot/internal/gemini"
	"horse.fit/blindspot/internal/store"
)

type fakeStorage struct {
	sources     map[string]int64
	articles    map[string]store.ArticleRecord
	nextID      int64
	unclustered []store.ArticleRecord

	persisted       []*clusterer.Cluster
	appended        map[int64][]clusterer.Member
	biasLabels      map[int64][]string
	blindspots      map[int64]*analytics.BlindspotMetrics
	trendingUpdates map[int64]analytics.TrendingUpdate
	trendingStates  map[int64]store.TrendingState
	recentClusters  []int64
	entities        map[int64]*gemini.Extraction
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		sources:         map[string]int64{},
		articles:        map[string]store.ArticleRecord{},
		appended:        map[int64][]clusterer.Member{},
		biasLabels:      map[int64][]string{},
		blindspots:      map[int64]*analytics.BlindspotMetrics{},
		trendingUpdates: map[int64]analytics.TrendingUpdate{},
		trendingStates:  map[int64]store.TrendingState{},
		entities:        map[int64]*gemini.Extraction{},
	}
}

func (f *fakeStorage) GetOrCreateSource(_ context.Context, url, _ string) (int64, error) {
	if id, ok := f.sources[url]; ok {
		return id, nil
	}
	f.nextID++
	f.sources[url] = f.nextID
	return f.nextID, nil
}

func (f *fakeStorage) InsertOrGetArticle(_ context.Context, in store.ArticleInput) (store.ArticleRecord, bool, error) {
	key := in.Headline + "|" + in.Description
	if existing, ok := f.articles[key]; ok {
		return existing, false, nil
	}
	f.nextID++
	rec := store.ArticleRecord{
		ID:          f.nextID,
		SourceID:    in.SourceID,
		Headline:    in.Headline,
		Description: in.Description,
		CreatedAt:   time.Now().UTC(),
	}
	f.articles[key] = rec
	return rec, true, nil
}

func (f *fakeStorage) GetUnclusteredSince(context.Context, time.Time) ([]store.ArticleRecord, error) {
	return f.unclustered, nil
}

func (f *fakeStorage) UpsertEntities(_ context.Context, articleID int64, extraction *gemini.Extraction) error {
	f.entities[articleID] = extraction
	return nil
}

func (f *fakeStorage) PersistNewCluster(_ context.Context, c *clusterer.Cluster) (int64, error) {
	f.nextID++
	f.persisted = append(f.persisted, c)
	f.trendingStates[f.nextID] = store.TrendingState{
		ClusterID:   f.nextID,
		CreatedAt:   c.CreatedAt,
		SourceCount: c.SourceCount(),
	}
	return f.nextID, nil
}

func (f *fakeStorage) AppendClusterMembers(_ context.Context, clusterID int64, members []clusterer.Member, _ int) error {
	f.appended[clusterID] = append(f.appended[clusterID], members...)
	return nil
}

func (f *fakeStorage) ClusterBiasLabels(_ context.Context, clusterID int64) ([]string, error) {
	return f.biasLabels[clusterID], nil
}

func (f *fakeStorage) UpdateClusterBlindspot(_ context.Context, clusterID int64, m *analytics.BlindspotMetrics) error {
	f.blindspots[clusterID] = m
	return nil
}

func (f *fakeStorage) GetTrendingState(_ context.Context, clusterID int64) (store.TrendingState, error) {
	state, ok := f.trendingStates[clusterID]
	if !ok {
		return store.TrendingState{}, fmt.Errorf("cluster %d not found", clusterID)
	}
	return state, nil
}

func (f *fakeStorage) UpdateClusterTrending(_ context.Context, clusterID int64, u analytics.TrendingUpdate) error {
	f.trendingUpdates[clusterID] = u
	return nil
}

func (f *fakeStorage) RecentClusterIDs(context.Context, time.Time) ([]int64, error) {
	return f.recentClusters, nil
}

func (f *fakeStorage) TrendingClusters(context.Context, time.Time, int) ([]store.ClusterSummary, error) {
	var out []store.ClusterSummary
	for id, u := range f.trendingUpdates {
		if u.IsTrending {
			out = append(out, store.ClusterSummary{ID: id})
		}
	}
	return out, nil
}

type fakeAI struct {
	embedErr map[string]error
}

func (a *fakeAI) EmbedText(_ context.Context, text string) ([]float64, error) {
	if a.embedErr != nil {
		if err, ok := a.embedErr[text]; ok {
			return nil, err
		}
	}
	// Deterministic toy embedding: all texts map near each other.
	return []float64{1, float64(len(text)) / 1000}, nil
}

func (a *fakeAI) ExtractEntities(context.Context, string) (*gemini.Extraction, error) {
	return &gemini.Extraction{Category: "سياسة"}, nil
}

type recordingNotifier struct {
	calls []int64
}

func (n *recordingNotifier) NotifyClusterCoverage(_ context.Context, clusterID int64, _ string, _ int) error {
	n.calls = append(n.calls, clusterID)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:                 "postgres://localhost/test",
		DBMinConns:                  1,
		DBMaxConns:                  4,
		EntityJSONMode:              "jsonb",
		SimilarityThreshold:         0.5,
		TimeWindowHours:             72,
		UnclusteredLookbackHours:    168,
		TrendingLookbackHours:       48,
		NotificationSourceThreshold: 10,
		LockFile:                    "test.lock",
		HTTPPort:                    8090,
	}
}

func testService(f *fakeStorage, ai AIProvider, n Notifier) *Service {
	return NewService(testConfig(), f, ai, n, zerolog.Nop())
}

func payload(sourceURL, sourceName, headline string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"source_url":%q,"source_name":%q,"headline":%q,"description":"desc"}`,
		sourceURL, sourceName, headline,
	))
}

func TestIngestInsertsAndDeduplicates(t *testing.T) {
	t.Parallel()

	f := newFakeStorage()
	svc := testService(f, &fakeAI{}, nil)

	result, err := svc.Ingest(context.Background(), []json.RawMessage{
		payload("https://a.com/", "A", "خبر اول"),
		payload("https://b.com/", "B", "خبر اول"), // same normalized content
		json.RawMessage(`{"source_name":"broken"}`),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if result.Received != 3 || result.Inserted != 1 || result.Duplicates != 1 || result.Invalid != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.entities) != 1 {
		t.Fatalf("entities must be extracted only for new articles, got %d", len(f.entities))
	}
}

func unclusteredArticle(id, sourceID int64, headline, publishedAt string) store.ArticleRecord {
	rec := store.ArticleRecord{
		ID:          id,
		SourceID:    sourceID,
		Headline:    headline,
		Description: "وصف الخبر",
		CreatedAt:   time.Now().UTC(),
	}
	if publishedAt != "" {
		rec.PublishedAt = &publishedAt
	}
	return rec
}

func TestClusterGroupsSimilarArticles(t *testing.T) {
	t.Parallel()

	f := newFakeStorage()
	f.unclustered = []store.ArticleRecord{
		unclusteredArticle(1, 1, "قتال في الخرطوم", "2026-03-01 10:00:00"),
		unclusteredArticle(2, 2, "قتال في الخرطوم اليوم", "2026-03-01 11:00:00"),
	}
	svc := testService(f, &fakeAI{}, nil)

	result, err := svc.Cluster(context.Background())
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if result.Candidates != 2 || result.Clustered != 2 || result.NewClusters != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.persisted) != 1 || len(f.persisted[0].Members) != 2 {
		t.Fatalf("expected one persisted cluster with two members")
	}
	if len(f.trendingUpdates) != 1 {
		t.Fatalf("trending must be recomputed for the new cluster")
	}
}

func TestClusterDropsBadTimestampsAndEmbedFailures(t *testing.T) {
	t.Parallel()

	f := newFakeStorage()
	f.unclustered = []store.ArticleRecord{
		unclusteredArticle(1, 1, "خبر صالح", "2026-03-01 10:00:00"),
		unclusteredArticle(2, 2, "خبر بتاريخ مكسور", "not-a-date"),
		unclusteredArticle(3, 3, "خبر بلا تاريخ", ""),
		unclusteredArticle(4, 4, "خبر يفشل تضمينه", "2026-03-01 12:00:00"),
	}
	ai := &fakeAI{embedErr: map[string]error{
		arabic.Normalize("خبر يفشل تضمينه") + ". " + arabic.Normalize("وصف الخبر"): fmt.Errorf("quota exceeded"),
	}}
	svc := testService(f, ai, nil)

	result, err := svc.Cluster(context.Background())
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if result.Dropped != 3 || result.Clustered != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClusterEmptyBacklogIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFakeStorage()
	svc := testService(f, &fakeAI{}, nil)

	result, err := svc.Cluster(context.Background())
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if result.Candidates != 0 || result.NewClusters != 0 {
		t.Fatalf("empty backlog must not create clusters: %+v", result)
	}
	if len(f.persisted) != 0 || len(f.trendingUpdates) != 0 {
		t.Fatalf("empty backlog must not touch storage")
	}
}

func TestClusterNotifiesOnThreshold(t *testing.T) {
	t.Parallel()

	f := newFakeStorage()
	// Ten sources, one article each, all near-identical content.
	for i := int64(1); i <= 10; i++ {
		f.unclustered = append(f.unclustered, unclusteredArticle(
			i, i, "نفس الخبر من مصادر مختلفه", fmt.Sprintf("2026-03-01 10:%02d:00", i),
		))
	}
	n := &recordingNotifier{}
	svc := testService(f, &fakeAI{}, n)

	if _, err := svc.Cluster(context.Background()); err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(n.calls) != 1 {
		t.Fatalf("expected one coverage notification, got %d", len(n.calls))
	}
}

func TestRefreshTrendingWalksRecentClusters(t *testing.T) {
	t.Parallel()

	f := newFakeStorage()
	now := time.Now().UTC()
	f.recentClusters = []int64{1, 2}
	f.trendingStates[1] = store.TrendingState{
		ClusterID:   1,
		CreatedAt:   now.Add(-24 * time.Hour),
		SourceCount: 4,
		MemberCreatedAt: []time.Time{
			now.Add(-time.Hour), now.Add(-2 * time.Hour), now.Add(-3 * time.Hour),
			now.Add(-9 * time.Hour),
		},
	}
	f.trendingStates[2] = store.TrendingState{
		ClusterID:   2,
		CreatedAt:   now.Add(-30 * time.Hour),
		SourceCount: 2,
	}
	svc := testService(f, &fakeAI{}, nil)

	result, err := svc.RefreshTrending(context.Background())
	if err != nil {
		t.Fatalf("RefreshTrending: %v", err)
	}
	if result.Checked != 2 {
		t.Fatalf("expected both clusters checked, got %d", result.Checked)
	}
	if !f.trendingUpdates[1].IsTrending {
		t.Fatalf("cluster 1 (3 recent vs 1 previous, 4 sources) must trend")
	}
	if f.trendingUpdates[2].IsTrending {
		t.Fatalf("idle cluster 2 must not trend")
	}
}

func TestParsePublishedAtLayouts(t *testing.T) {
	t.Parallel()

	svc := testService(newFakeStorage(), &fakeAI{}, nil)
	ok := []string{
		"2026-03-01 10:00:00",
		"2026-03-01T10:00:00Z",
		"2026-03-01T10:00:00",
	}
	for _, raw := range ok {
		value := raw
		if _, parsed := svc.parsePublishedAt(store.ArticleRecord{ID: 1, PublishedAt: &value}); !parsed {
			t.Fatalf("expected %q to parse", raw)
		}
	}

	bad := "March 1st"
	if _, parsed := svc.parsePublishedAt(store.ArticleRecord{ID: 1, PublishedAt: &bad}); parsed {
		t.Fatalf("expected %q to be rejected", bad)
	}
}
