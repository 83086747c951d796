// Package pipeline orchestrates the news flow: payload ingestion with
// content-hash dedup, embedding-based clustering, and the blindspot and
// trending analytics that follow each clustering pass.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/blindspot/internal/analytics"
	"horse.fit/blindspot/internal/arabic"
	"horse.fit/blindspot/internal/clusterer"
	"horse.fit/blindspot/internal/config"
	"horse.fit/blindspot/internal/gemini"
	"horse.fit/blindspot/internal/globaltime"
	"horse.fit/blindspot/internal/store"
	payloadschema "horse.fit/blindspot/schema"
)

// publishedAtLayouts are tried in order when parsing feed timestamps.
var publishedAtLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Notifier is told about clusters whose coverage crossed the
// notification threshold.
type Notifier interface {
	NotifyClusterCoverage(ctx context.Context, clusterID int64, title string, sourceCount int) error
}

// LogNotifier is the default Notifier; it only writes a log line.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) NotifyClusterCoverage(_ context.Context, clusterID int64, title string, sourceCount int) error {
	n.Logger.Info().
		Int64("cluster_id", clusterID).
		Str("title", title).
		Int("source_count", sourceCount).
		Msg("cluster coverage crossed notification threshold")
	return nil
}

// Storage is the persistence surface the pipeline needs. *store.Store
// implements it.
type Storage interface {
	GetOrCreateSource(ctx context.Context, url, name string) (int64, error)
	InsertOrGetArticle(ctx context.Context, in store.ArticleInput) (store.ArticleRecord, bool, error)
	GetUnclusteredSince(ctx context.Context, cutoff time.Time) ([]store.ArticleRecord, error)
	UpsertEntities(ctx context.Context, articleID int64, extraction *gemini.Extraction) error
	PersistNewCluster(ctx context.Context, c *clusterer.Cluster) (int64, error)
	AppendClusterMembers(ctx context.Context, clusterID int64, members []clusterer.Member, sourceCount int) error
	ClusterBiasLabels(ctx context.Context, clusterID int64) ([]string, error)
	UpdateClusterBlindspot(ctx context.Context, clusterID int64, m *analytics.BlindspotMetrics) error
	GetTrendingState(ctx context.Context, clusterID int64) (store.TrendingState, error)
	UpdateClusterTrending(ctx context.Context, clusterID int64, u analytics.TrendingUpdate) error
	RecentClusterIDs(ctx context.Context, cutoff time.Time) ([]int64, error)
	TrendingClusters(ctx context.Context, cutoff time.Time, limit int) ([]store.ClusterSummary, error)
}

type Service struct {
	cfg      *config.Config
	store    Storage
	ai       AIProvider
	notifier Notifier
	logger   zerolog.Logger
}

// AIProvider bundles the two model capabilities the pipeline needs.
type AIProvider interface {
	gemini.Embedder
	gemini.Extractor
}

func NewService(cfg *config.Config, st Storage, ai AIProvider, notifier Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Service{
		cfg:      cfg,
		store:    st,
		ai:       ai,
		notifier: notifier,
		logger:   logger,
	}
}

type IngestResult struct {
	Received   int
	Inserted   int
	Duplicates int
	Invalid    int
}

// Ingest validates raw payloads and stores them with dedup. A payload
// whose normalized content already exists counts as a duplicate, not an
// error. Entity extraction runs only for newly inserted articles and a
// per-article extraction failure never fails the batch.
func (s *Service) Ingest(ctx context.Context, payloads []json.RawMessage) (IngestResult, error) {
	result := IngestResult{Received: len(payloads)}

	for i, payload := range payloads {
		item, err := payloadschema.ValidateArticleItemPayload(payload)
		if err != nil {
			result.Invalid++
			s.logger.Warn().Err(err).Int("payload_index", i).Msg("rejecting invalid article payload")
			continue
		}

		sourceID, err := s.store.GetOrCreateSource(ctx, item.SourceURL, item.SourceName)
		if err != nil {
			return result, fmt.Errorf("resolve source %s: %w", item.SourceName, err)
		}

		in := store.ArticleInput{
			SourceID:    sourceID,
			Headline:    item.Headline,
			Description: item.Description,
		}
		if item.PublishedAt != nil {
			in.PublishedAt = *item.PublishedAt
		}
		if item.ArticleURL != nil {
			in.ArticleURL = *item.ArticleURL
		}
		if item.ImageURL != nil {
			in.ImageURL = *item.ImageURL
		}
		if item.Category != nil {
			in.Category = *item.Category
		}

		article, created, err := s.store.InsertOrGetArticle(ctx, in)
		if err != nil {
			return result, fmt.Errorf("insert article: %w", err)
		}
		if !created {
			result.Duplicates++
			s.logger.Debug().
				Int64("article_id", article.ID).
				Msg("payload deduplicated to existing article")
			continue
		}
		result.Inserted++

		s.extractEntities(ctx, article)
	}

	return result, nil
}

func (s *Service) extractEntities(ctx context.Context, article store.ArticleRecord) {
	if s.ai == nil {
		return
	}

	text := strings.TrimSpace(article.Headline + ". " + article.Description)
	extraction, err := s.ai.ExtractEntities(ctx, text)
	if err != nil {
		s.logger.Warn().Err(err).
			Int64("article_id", article.ID).
			Msg("entity extraction failed, continuing without entities")
		return
	}
	if err := s.store.UpsertEntities(ctx, article.ID, extraction); err != nil {
		s.logger.Warn().Err(err).
			Int64("article_id", article.ID).
			Msg("failed to store entities")
	}
}

type ClusterResult struct {
	Candidates  int
	Clustered   int
	Dropped     int
	NewClusters int
}

// Cluster runs one clustering pass over the unclustered backlog.
// Articles with unparsable timestamps or failed embeddings are dropped
// from this run and stay eligible for the next one.
func (s *Service) Cluster(ctx context.Context) (ClusterResult, error) {
	cutoff := globaltime.UTC().Add(-time.Duration(s.cfg.UnclusteredLookbackHours) * time.Hour)
	articles, err := s.store.GetUnclusteredSince(ctx, cutoff)
	if err != nil {
		return ClusterResult{}, fmt.Errorf("load unclustered articles: %w", err)
	}

	result := ClusterResult{Candidates: len(articles)}
	if len(articles) == 0 {
		return result, nil
	}

	docs := make([]clusterer.Document, 0, len(articles))
	for _, a := range articles {
		ts, ok := s.parsePublishedAt(a)
		if !ok {
			result.Dropped++
			continue
		}

		normHeadline := arabic.Normalize(a.Headline)
		normDescription := arabic.Normalize(a.Description)
		if normHeadline == "" && normDescription == "" {
			result.Dropped++
			s.logger.Warn().Int64("article_id", a.ID).Msg("dropping article with empty content")
			continue
		}
		text := normHeadline + ". " + normDescription

		embedding, err := s.ai.EmbedText(ctx, text)
		if err != nil {
			result.Dropped++
			s.logger.Warn().Err(err).
				Int64("article_id", a.ID).
				Msg("embedding failed, dropping article from this run")
			continue
		}

		docs = append(docs, clusterer.Document{
			ArticleID: a.ID,
			SourceID:  a.SourceID,
			Headline:  a.Headline,
			Timestamp: ts,
			Embedding: embedding,
		})
	}

	engine := clusterer.New(clusterer.Options{
		SimilarityThreshold: s.cfg.SimilarityThreshold,
		TimeWindow:          time.Duration(s.cfg.TimeWindowHours) * time.Hour,
	})
	assigned, skipped := engine.Run(docs)
	result.Clustered = assigned
	result.Dropped += len(skipped)

	for _, c := range engine.Clusters() {
		if !c.Dirty() {
			continue
		}

		var clusterID int64
		if c.IsNew() {
			clusterID, err = s.store.PersistNewCluster(ctx, c)
			if err != nil {
				return result, fmt.Errorf("persist cluster: %w", err)
			}
			result.NewClusters++
		} else {
			clusterID = c.ID
			if err := s.store.AppendClusterMembers(ctx, clusterID, c.NewAssignments(), c.SourceCount()); err != nil {
				return result, fmt.Errorf("append cluster members: %w", err)
			}
		}

		if err := s.analyzeCluster(ctx, clusterID, c.Title, c.SourceCount()); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (s *Service) parsePublishedAt(a store.ArticleRecord) (time.Time, bool) {
	if a.PublishedAt == nil || strings.TrimSpace(*a.PublishedAt) == "" {
		s.logger.Warn().Int64("article_id", a.ID).Msg("dropping article without publication timestamp")
		return time.Time{}, false
	}

	raw := strings.TrimSpace(*a.PublishedAt)
	for _, layout := range publishedAtLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}

	s.logger.Warn().
		Int64("article_id", a.ID).
		Str("published_at", raw).
		Msg("dropping article with unparsable publication timestamp")
	return time.Time{}, false
}

func (s *Service) analyzeCluster(ctx context.Context, clusterID int64, title string, sourceCount int) error {
	labels, err := s.store.ClusterBiasLabels(ctx, clusterID)
	if err != nil {
		return fmt.Errorf("load bias labels for cluster %d: %w", clusterID, err)
	}

	// Nil metrics mean no member carried a bias label; stored values
	// stay untouched in that case.
	if metrics := analytics.CalculateBlindspot(labels); metrics != nil {
		if err := s.store.UpdateClusterBlindspot(ctx, clusterID, metrics); err != nil {
			return err
		}
	}

	if err := s.updateTrending(ctx, clusterID); err != nil {
		return err
	}

	if sourceCount >= s.cfg.NotificationSourceThreshold {
		if err := s.notifier.NotifyClusterCoverage(ctx, clusterID, title, sourceCount); err != nil {
			s.logger.Warn().Err(err).
				Int64("cluster_id", clusterID).
				Msg("coverage notification failed")
		}
	}
	return nil
}

func (s *Service) updateTrending(ctx context.Context, clusterID int64) error {
	state, err := s.store.GetTrendingState(ctx, clusterID)
	if err != nil {
		return fmt.Errorf("load trending state for cluster %d: %w", clusterID, err)
	}

	in := analytics.TrendingInput{
		ClusterCreatedAt: state.CreatedAt,
		SourceCount:      state.SourceCount,
		MemberCreatedAt:  state.MemberCreatedAt,
	}
	if state.FirstSeenAt != nil {
		in.FirstSeenAt = *state.FirstSeenAt
	}

	update := analytics.CalculateTrending(in, globaltime.UTC())
	if err := s.store.UpdateClusterTrending(ctx, clusterID, update); err != nil {
		return err
	}
	return nil
}

type TrendingResult struct {
	Checked  int
	Trending int
}

// RefreshTrending recomputes coverage velocity for every cluster inside
// the trending lookback window.
func (s *Service) RefreshTrending(ctx context.Context) (TrendingResult, error) {
	cutoff := globaltime.UTC().Add(-time.Duration(s.cfg.TrendingLookbackHours) * time.Hour)
	ids, err := s.store.RecentClusterIDs(ctx, cutoff)
	if err != nil {
		return TrendingResult{}, fmt.Errorf("load recent clusters: %w", err)
	}

	result := TrendingResult{Checked: len(ids)}
	for _, id := range ids {
		if err := s.updateTrending(ctx, id); err != nil {
			return result, err
		}
	}

	trending, err := s.store.TrendingClusters(ctx, cutoff, 0)
	if err != nil {
		return result, fmt.Errorf("count trending clusters: %w", err)
	}
	result.Trending = len(trending)
	return result, nil
}

type RunResult struct {
	Cluster  ClusterResult
	Trending TrendingResult
}

// Run executes one full pipeline pass: clustering followed by a
// trending refresh. The caller holds the run lock.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	clusterResult, err := s.Cluster(ctx)
	if err != nil {
		return RunResult{Cluster: clusterResult}, err
	}

	trendingResult, err := s.RefreshTrending(ctx)
	if err != nil {
		return RunResult{Cluster: clusterResult, Trending: trendingResult}, err
	}

	s.logger.Info().
		Int("candidates", clusterResult.Candidates).
		Int("clustered", clusterResult.Clustered).
		Int("dropped", clusterResult.Dropped).
		Int("new_clusters", clusterResult.NewClusters).
		Int("trending", trendingResult.Trending).
		Msg("pipeline run complete")
	return RunResult{Cluster: clusterResult, Trending: trendingResult}, nil
}
