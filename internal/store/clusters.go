package store

import (
	"context"
	"fmt"
	"time"

	"horse.fit/blindspot/internal/analytics"
	"horse.fit/blindspot/internal/clusterer"
	"horse.fit/blindspot/internal/db"
)

// PersistNewCluster writes a cluster created during this run together
// with all of its members.
func (s *Store) PersistNewCluster(ctx context.Context, c *clusterer.Cluster) (int64, error) {
	if c == nil || len(c.Members) == 0 {
		return 0, fmt.Errorf("cluster has no members")
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin cluster transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertQ = `
INSERT INTO clusters (title, number_of_sources, published_at, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id
`
	var clusterID int64
	err = tx.QueryRow(ctx, insertQ,
		c.Title, c.SourceCount(), c.CreatedAt.Format(time.RFC3339), c.CreatedAt,
	).Scan(&clusterID)
	if err != nil {
		return 0, fmt.Errorf("insert cluster: %w", err)
	}

	for _, m := range c.Members {
		if err := insertMemberTx(ctx, tx, clusterID, m); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit cluster transaction: %w", err)
	}
	return clusterID, nil
}

// AppendClusterMembers adds this run's new assignments to an existing
// cluster and refreshes its source count.
func (s *Store) AppendClusterMembers(ctx context.Context, clusterID int64, members []clusterer.Member, sourceCount int) error {
	if len(members) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin membership transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range members {
		if err := insertMemberTx(ctx, tx, clusterID, m); err != nil {
			return err
		}
	}

	const updateQ = `
UPDATE clusters
SET number_of_sources = $1
WHERE id = $2
`
	if _, err := tx.Exec(ctx, updateQ, sourceCount, clusterID); err != nil {
		return fmt.Errorf("update cluster source count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit membership transaction: %w", err)
	}
	return nil
}

func insertMemberTx(ctx context.Context, tx db.Tx, clusterID int64, m clusterer.Member) error {
	const q = `
INSERT INTO cluster_articles (cluster_id, article_id, similarity_score)
VALUES ($1, $2, $3)
ON CONFLICT (cluster_id, article_id) DO NOTHING
`
	if _, err := tx.Exec(ctx, q, clusterID, m.ArticleID, m.Similarity); err != nil {
		return fmt.Errorf("insert cluster member %d/%d: %w", clusterID, m.ArticleID, err)
	}
	return nil
}

// ClusterBiasLabels returns the bias label of each member article's
// source. Unlabeled sources come back as empty strings.
func (s *Store) ClusterBiasLabels(ctx context.Context, clusterID int64) ([]string, error) {
	const q = `
SELECT COALESCE(src.bias, '')
FROM cluster_articles ca
JOIN articles a ON a.id = ca.article_id
LEFT JOIN sources src ON src.id = a.source_id
WHERE ca.cluster_id = $1
`
	rows, err := s.pool.Query(ctx, q, clusterID)
	if err != nil {
		return nil, fmt.Errorf("query cluster bias labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan bias label: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bias labels: %w", err)
	}
	return labels, nil
}

// UpdateClusterBlindspot stores a computed blindspot classification.
func (s *Store) UpdateClusterBlindspot(ctx context.Context, clusterID int64, m *analytics.BlindspotMetrics) error {
	if m == nil {
		return fmt.Errorf("blindspot metrics are nil")
	}

	const q = `
UPDATE clusters
SET blindspot_type = $1,
    bias_coverage_pro = $2,
    bias_coverage_neutral = $3,
    bias_coverage_oppose = $4,
    bias_balance_score = $5
WHERE id = $6
`
	if _, err := s.pool.Exec(ctx, q,
		m.BlindspotType, m.ProCount, m.NeutralCount, m.OpposeCount, m.BalanceScore, clusterID,
	); err != nil {
		return fmt.Errorf("update cluster blindspot: %w", err)
	}
	return nil
}

// TrendingState is the stored cluster state the velocity pass reads.
type TrendingState struct {
	ClusterID       int64
	CreatedAt       time.Time
	FirstSeenAt     *time.Time
	SourceCount     int
	MemberCreatedAt []time.Time
}

// GetTrendingState loads member arrival timestamps for one cluster.
func (s *Store) GetTrendingState(ctx context.Context, clusterID int64) (TrendingState, error) {
	const clusterQ = `
SELECT created_at, first_seen_at, number_of_sources
FROM clusters
WHERE id = $1
`
	state := TrendingState{ClusterID: clusterID}
	err := s.pool.QueryRow(ctx, clusterQ, clusterID).Scan(
		&state.CreatedAt, &state.FirstSeenAt, &state.SourceCount,
	)
	if err == db.ErrNoRows {
		return TrendingState{}, fmt.Errorf("cluster %d not found", clusterID)
	}
	if err != nil {
		return TrendingState{}, fmt.Errorf("load cluster %d: %w", clusterID, err)
	}

	const membersQ = `
SELECT a.created_at
FROM cluster_articles ca
JOIN articles a ON a.id = ca.article_id
WHERE ca.cluster_id = $1
`
	rows, err := s.pool.Query(ctx, membersQ, clusterID)
	if err != nil {
		return TrendingState{}, fmt.Errorf("query member timestamps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var created time.Time
		if err := rows.Scan(&created); err != nil {
			return TrendingState{}, fmt.Errorf("scan member timestamp: %w", err)
		}
		state.MemberCreatedAt = append(state.MemberCreatedAt, created)
	}
	if err := rows.Err(); err != nil {
		return TrendingState{}, fmt.Errorf("iterate member timestamps: %w", err)
	}
	return state, nil
}

// UpdateClusterTrending stores a velocity recomputation.
func (s *Store) UpdateClusterTrending(ctx context.Context, clusterID int64, u analytics.TrendingUpdate) error {
	const q = `
UPDATE clusters
SET coverage_velocity = $1,
    is_trending = $2,
    first_seen_at = $3,
    last_coverage_check = $4
WHERE id = $5
`
	if _, err := s.pool.Exec(ctx, q,
		u.Velocity, u.IsTrending, u.FirstSeenAt, u.LastCoverageCheck, clusterID,
	); err != nil {
		return fmt.Errorf("update cluster trending: %w", err)
	}
	return nil
}

// RecentClusterIDs lists clusters created after the cutoff, oldest first.
func (s *Store) RecentClusterIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	const q = `
SELECT id
FROM clusters
WHERE created_at >= $1
ORDER BY id ASC
`
	rows, err := s.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query recent clusters: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cluster id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent clusters: %w", err)
	}
	return ids, nil
}

// ClusterSummary is the read-model row served by the HTTP API.
type ClusterSummary struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	NumberOfSources  int        `json:"number_of_sources"`
	CreatedAt        time.Time  `json:"created_at"`
	BlindspotType    *string    `json:"blindspot_type"`
	BalanceScore     float64    `json:"balance_score"`
	CoverageVelocity float64    `json:"coverage_velocity"`
	IsTrending       bool       `json:"is_trending"`
	FirstSeenAt      *time.Time `json:"first_seen_at"`
}

const clusterSummaryColumns = `
SELECT id, title, number_of_sources, created_at, blindspot_type,
       bias_balance_score, coverage_velocity, is_trending, first_seen_at
FROM clusters
`

func scanClusterSummary(rows *db.Rows) (ClusterSummary, error) {
	var c ClusterSummary
	err := rows.Scan(
		&c.ID, &c.Title, &c.NumberOfSources, &c.CreatedAt, &c.BlindspotType,
		&c.BalanceScore, &c.CoverageVelocity, &c.IsTrending, &c.FirstSeenAt,
	)
	return c, err
}

// ListClusters returns the newest clusters first.
func (s *Store) ListClusters(ctx context.Context, limit, offset int) ([]ClusterSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	q := clusterSummaryColumns + `
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2
`
	rows, err := s.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var out []ClusterSummary
	for rows.Next() {
		c, err := scanClusterSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}
	return out, nil
}

// TrendingClusters returns trending clusters created within the
// lookback window, fastest first.
func (s *Store) TrendingClusters(ctx context.Context, cutoff time.Time, limit int) ([]ClusterSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	q := clusterSummaryColumns + `
WHERE is_trending = TRUE
  AND created_at >= $1
ORDER BY coverage_velocity DESC, id DESC
LIMIT $2
`
	rows, err := s.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query trending clusters: %w", err)
	}
	defer rows.Close()

	var out []ClusterSummary
	for rows.Next() {
		c, err := scanClusterSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trending cluster: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trending clusters: %w", err)
	}
	return out, nil
}

// ClusterDetail is one cluster with its member articles.
type ClusterDetail struct {
	ClusterSummary
	BiasCoveragePro     int             `json:"bias_coverage_pro"`
	BiasCoverageNeutral int             `json:"bias_coverage_neutral"`
	BiasCoverageOppose  int             `json:"bias_coverage_oppose"`
	Articles            []MemberArticle `json:"articles"`
}

// MemberArticle is one article inside a cluster detail response.
type MemberArticle struct {
	ID              int64   `json:"id"`
	Headline        string  `json:"headline"`
	SourceName      *string `json:"source_name"`
	SourceBias      *string `json:"source_bias"`
	ArticleURL      *string `json:"article_url"`
	PublishedAt     *string `json:"published_at"`
	SimilarityScore float64 `json:"similarity_score"`
}

// GetClusterDetail loads one cluster with members, or (zero, false)
// when the cluster does not exist.
func (s *Store) GetClusterDetail(ctx context.Context, clusterID int64) (ClusterDetail, bool, error) {
	const clusterQ = `
SELECT id, title, number_of_sources, created_at, blindspot_type,
       bias_balance_score, coverage_velocity, is_trending, first_seen_at,
       bias_coverage_pro, bias_coverage_neutral, bias_coverage_oppose
FROM clusters
WHERE id = $1
`
	var d ClusterDetail
	err := s.pool.QueryRow(ctx, clusterQ, clusterID).Scan(
		&d.ID, &d.Title, &d.NumberOfSources, &d.CreatedAt, &d.BlindspotType,
		&d.BalanceScore, &d.CoverageVelocity, &d.IsTrending, &d.FirstSeenAt,
		&d.BiasCoveragePro, &d.BiasCoverageNeutral, &d.BiasCoverageOppose,
	)
	if err == db.ErrNoRows {
		return ClusterDetail{}, false, nil
	}
	if err != nil {
		return ClusterDetail{}, false, fmt.Errorf("load cluster %d: %w", clusterID, err)
	}

	const membersQ = `
SELECT a.id, a.headline, src.name, src.bias, a.article_url, a.published_at, ca.similarity_score
FROM cluster_articles ca
JOIN articles a ON a.id = ca.article_id
LEFT JOIN sources src ON src.id = a.source_id
WHERE ca.cluster_id = $1
ORDER BY ca.similarity_score DESC, a.id ASC
`
	rows, err := s.pool.Query(ctx, membersQ, clusterID)
	if err != nil {
		return ClusterDetail{}, false, fmt.Errorf("query cluster members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m MemberArticle
		if err := rows.Scan(
			&m.ID, &m.Headline, &m.SourceName, &m.SourceBias,
			&m.ArticleURL, &m.PublishedAt, &m.SimilarityScore,
		); err != nil {
			return ClusterDetail{}, false, fmt.Errorf("scan cluster member: %w", err)
		}
		d.Articles = append(d.Articles, m)
	}
	if err := rows.Err(); err != nil {
		return ClusterDetail{}, false, fmt.Errorf("iterate cluster members: %w", err)
	}
	return d, true, nil
}
