// Package store is the persistence layer for articles, clusters and
// entities. All access goes through raw SQL on the shared pool.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/blindspot/internal/arabic"
	"horse.fit/blindspot/internal/db"
	"horse.fit/blindspot/internal/gemini"
)

type Store struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func New(pool *db.Pool, logger zerolog.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger,
	}
}

// ArticleInput is one incoming feed item.
type ArticleInput struct {
	SourceID    int64
	Headline    string
	Description string
	PublishedAt string
	ArticleURL  string
	ImageURL    string
	Category    string
}

// ArticleRecord is the subset of article state the pipeline works with.
type ArticleRecord struct {
	ID          int64
	SourceID    int64
	Headline    string
	Description string
	PublishedAt *string
	CreatedAt   time.Time
	SourceBias  *string
}

// GetOrCreateSource resolves a source by URL, creating it on first sight.
func (s *Store) GetOrCreateSource(ctx context.Context, url, name string) (int64, error) {
	const selectQ = `
SELECT id
FROM sources
WHERE url = $1
LIMIT 1
`
	var id int64
	err := s.pool.QueryRow(ctx, selectQ, url).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != db.ErrNoRows {
		return 0, fmt.Errorf("find source: %w", err)
	}

	const insertQ = `
INSERT INTO sources (url, name)
VALUES ($1, $2)
RETURNING id
`
	if err := s.pool.QueryRow(ctx, insertQ, url, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert source: %w", err)
	}
	return id, nil
}

// InsertOrGetArticle deduplicates by content hash. When an article with
// the same normalized content already exists, the stored row is
// returned unchanged and no write happens.
func (s *Store) InsertOrGetArticle(ctx context.Context, in ArticleInput) (ArticleRecord, bool, error) {
	hash := arabic.ContentHash(in.Headline, in.Description)

	existing, found, err := s.findArticleByHash(ctx, hash)
	if err != nil {
		return ArticleRecord{}, false, err
	}
	if found {
		return existing, false, nil
	}

	const insertQ = `
INSERT INTO articles (source_id, headline, description, published_at, article_url, image_url, category, content_hash, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
ON CONFLICT (content_hash) WHERE content_hash NOT LIKE 'DUPLICATE_OF_%' DO NOTHING
RETURNING id, created_at
`
	category := in.Category
	if category == "" {
		category = "local"
	}

	var (
		id        int64
		createdAt time.Time
	)
	err = s.pool.QueryRow(ctx, insertQ,
		in.SourceID, in.Headline, in.Description, in.PublishedAt,
		in.ArticleURL, in.ImageURL, category, hash, time.Now().UTC(),
	).Scan(&id, &createdAt)
	if err == db.ErrNoRows {
		// Lost a race to a concurrent insert of the same content.
		existing, found, err = s.findArticleByHash(ctx, hash)
		if err != nil {
			return ArticleRecord{}, false, err
		}
		if !found {
			return ArticleRecord{}, false, fmt.Errorf("article with hash %s vanished after conflict", hash)
		}
		return existing, false, nil
	}
	if err != nil {
		return ArticleRecord{}, false, fmt.Errorf("insert article: %w", err)
	}

	record := ArticleRecord{
		ID:          id,
		SourceID:    in.SourceID,
		Headline:    in.Headline,
		Description: in.Description,
		CreatedAt:   createdAt,
	}
	if in.PublishedAt != "" {
		published := in.PublishedAt
		record.PublishedAt = &published
	}
	return record, true, nil
}

func (s *Store) findArticleByHash(ctx context.Context, hash string) (ArticleRecord, bool, error) {
	const q = `
SELECT a.id, a.source_id, a.headline, a.description, a.published_at, a.created_at, src.bias
FROM articles a
LEFT JOIN sources src ON src.id = a.source_id
WHERE a.content_hash = $1
LIMIT 1
`
	var rec ArticleRecord
	err := s.pool.QueryRow(ctx, q, hash).Scan(
		&rec.ID, &rec.SourceID, &rec.Headline, &rec.Description,
		&rec.PublishedAt, &rec.CreatedAt, &rec.SourceBias,
	)
	if err == db.ErrNoRows {
		return ArticleRecord{}, false, nil
	}
	if err != nil {
		return ArticleRecord{}, false, fmt.Errorf("find article by hash: %w", err)
	}
	return rec, true, nil
}

// GetUnclusteredSince returns articles created after the cutoff that do
// not belong to any cluster yet, oldest first. Rows marked as
// duplicates are excluded.
func (s *Store) GetUnclusteredSince(ctx context.Context, cutoff time.Time) ([]ArticleRecord, error) {
	const q = `
SELECT a.id, a.source_id, a.headline, a.description, a.published_at, a.created_at, src.bias
FROM articles a
LEFT JOIN sources src ON src.id = a.source_id
LEFT JOIN cluster_articles ca ON ca.article_id = a.id
WHERE ca.article_id IS NULL
  AND a.created_at >= $1
  AND (a.content_hash IS NULL OR a.content_hash NOT LIKE 'DUPLICATE_OF_%')
ORDER BY a.created_at ASC, a.id ASC
`
	rows, err := s.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query unclustered articles: %w", err)
	}
	defer rows.Close()

	var out []ArticleRecord
	for rows.Next() {
		var rec ArticleRecord
		if err := rows.Scan(
			&rec.ID, &rec.SourceID, &rec.Headline, &rec.Description,
			&rec.PublishedAt, &rec.CreatedAt, &rec.SourceBias,
		); err != nil {
			return nil, fmt.Errorf("scan unclustered article: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unclustered articles: %w", err)
	}
	return out, nil
}

// BackfillResult summarizes one hash backfill pass.
type BackfillResult struct {
	Hashed     int
	Duplicates int
}

// BackfillContentHashes computes hashes for legacy rows that lack one.
// Within each hash group the lowest id becomes canonical; the rest are
// marked DUPLICATE_OF_<canonical id> instead of being deleted.
func (s *Store) BackfillContentHashes(ctx context.Context) (BackfillResult, error) {
	const selectQ = `
SELECT id, headline, description
FROM articles
WHERE content_hash IS NULL
ORDER BY id ASC
`
	rows, err := s.pool.Query(ctx, selectQ)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("query articles without hash: %w", err)
	}

	type pending struct {
		id          int64
		headline    string
		description string
	}
	var missing []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.headline, &p.description); err != nil {
			rows.Close()
			return BackfillResult{}, fmt.Errorf("scan article without hash: %w", err)
		}
		missing = append(missing, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return BackfillResult{}, fmt.Errorf("iterate articles without hash: %w", err)
	}
	rows.Close()

	if len(missing) == 0 {
		return BackfillResult{}, nil
	}

	groups := make(map[string][]pending, len(missing))
	for _, p := range missing {
		hash := arabic.ContentHash(p.headline, p.description)
		groups[hash] = append(groups[hash], p)
	}

	hashes := make([]string, 0, len(groups))
	for hash := range groups {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return BackfillResult{}, fmt.Errorf("begin backfill transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var result BackfillResult
	for _, hash := range hashes {
		group := groups[hash]
		sort.Slice(group, func(i, j int) bool { return group[i].id < group[j].id })

		canonicalID := group[0].id
		duplicates := group[1:]

		// The hash may already belong to an article inserted after the
		// legacy rows; that row stays canonical and the whole group
		// becomes duplicates.
		var existingID int64
		err := tx.QueryRow(ctx, `SELECT id FROM articles WHERE content_hash = $1 LIMIT 1`, hash).Scan(&existingID)
		switch {
		case err == db.ErrNoRows:
			if _, err := tx.Exec(ctx, `UPDATE articles SET content_hash = $1 WHERE id = $2`, hash, canonicalID); err != nil {
				return BackfillResult{}, fmt.Errorf("assign hash to article %d: %w", canonicalID, err)
			}
			result.Hashed++
		case err != nil:
			return BackfillResult{}, fmt.Errorf("check existing hash: %w", err)
		default:
			duplicates = group
			canonicalID = existingID
		}

		for _, dup := range duplicates {
			marker := fmt.Sprintf("DUPLICATE_OF_%d", canonicalID)
			if _, err := tx.Exec(ctx, `UPDATE articles SET content_hash = $1 WHERE id = $2`, marker, dup.id); err != nil {
				return BackfillResult{}, fmt.Errorf("mark article %d as duplicate: %w", dup.id, err)
			}
			result.Duplicates++
			s.logger.Warn().
				Int64("article_id", dup.id).
				Int64("canonical_id", canonicalID).
				Msg("marked article as duplicate during hash backfill")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return BackfillResult{}, fmt.Errorf("commit backfill transaction: %w", err)
	}
	return result, nil
}

// UpsertEntities stores the extraction for one article, replacing any
// previous row.
func (s *Store) UpsertEntities(ctx context.Context, articleID int64, extraction *gemini.Extraction) error {
	if extraction == nil {
		return fmt.Errorf("extraction is nil")
	}

	const q = `
INSERT INTO entities (
	article_id, people, cities, regions, countries, organizations,
	political_parties_and_militias, brands, job_titles, category, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
ON CONFLICT (article_id) DO UPDATE SET
	people = EXCLUDED.people,
	cities = EXCLUDED.cities,
	regions = EXCLUDED.regions,
	countries = EXCLUDED.countries,
	organizations = EXCLUDED.organizations,
	political_parties_and_militias = EXCLUDED.political_parties_and_militias,
	brands = EXCLUDED.brands,
	job_titles = EXCLUDED.job_titles,
	category = EXCLUDED.category
`
	_, err := s.pool.Exec(ctx, q,
		articleID,
		db.StringList(extraction.People),
		db.StringList(extraction.Cities),
		db.StringList(extraction.Regions),
		db.StringList(extraction.Countries),
		db.StringList(extraction.Organizations),
		db.StringList(extraction.PoliticalPartiesAndMilitias),
		db.StringList(extraction.Brands),
		db.StringList(extraction.JobTitles),
		extraction.Category,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert entities for article %d: %w", articleID, err)
	}
	return nil
}
