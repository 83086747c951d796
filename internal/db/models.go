package db

import (
	"time"
)

// Source maps sources.
type Source struct {
	ID         int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Name       string  `gorm:"column:name;type:text;not null"`
	URL        string  `gorm:"column:url;type:text;not null"`
	Language   *string `gorm:"column:language;type:text"`
	Owner      *string `gorm:"column:owner;type:text"`
	FoundedAt  *string `gorm:"column:founded_at;type:text"`
	HQLocation *string `gorm:"column:hq_location;type:text"`
	Bias       *string `gorm:"column:bias;type:text"`
}

func (Source) TableName() string { return "sources" }

// Article maps articles. PublishedAt is kept as the feed's original string;
// CreatedAt is the ingestion timestamp and drives all window queries.
type Article struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	SourceID    int64      `gorm:"column:source_id;type:bigint;not null;index"`
	Headline    string     `gorm:"column:headline;type:text;not null"`
	Description string     `gorm:"column:description;type:text;not null;default:''"`
	PublishedAt *string    `gorm:"column:published_at;type:text"`
	ArticleURL  *string    `gorm:"column:article_url;type:text"`
	ImageURL    *string    `gorm:"column:image_url;type:text"`
	Category    string     `gorm:"column:category;type:text;not null;default:local"`
	ContentHash *string    `gorm:"column:content_hash;type:text;index:idx_articles_content_hash"`
	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt   *time.Time `gorm:"column:updated_at;type:timestamptz"`
}

func (Article) TableName() string { return "articles" }

// Cluster maps clusters.
type Cluster struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title           string    `gorm:"column:title;type:text;not null"`
	NumberOfSources int       `gorm:"column:number_of_sources;type:integer;not null;default:0"`
	PublishedAt     *string   `gorm:"column:published_at;type:text"`
	CreatedAt       time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`

	BlindspotType       *string `gorm:"column:blindspot_type;type:text"`
	BiasCoveragePro     int     `gorm:"column:bias_coverage_pro;type:integer;not null;default:0"`
	BiasCoverageNeutral int     `gorm:"column:bias_coverage_neutral;type:integer;not null;default:0"`
	BiasCoverageOppose  int     `gorm:"column:bias_coverage_oppose;type:integer;not null;default:0"`
	BiasBalanceScore    float64 `gorm:"column:bias_balance_score;type:double precision;not null;default:0"`

	CoverageVelocity  float64    `gorm:"column:coverage_velocity;type:double precision;not null;default:0"`
	IsTrending        bool       `gorm:"column:is_trending;not null;default:false"`
	FirstSeenAt       *time.Time `gorm:"column:first_seen_at;type:timestamptz"`
	LastCoverageCheck *time.Time `gorm:"column:last_coverage_check;type:timestamptz"`
	CoverageHistory   JSONText   `gorm:"column:coverage_history"`
}

func (Cluster) TableName() string { return "clusters" }

// ClusterArticle maps the cluster_articles membership table.
type ClusterArticle struct {
	ClusterID       int64   `gorm:"column:cluster_id;primaryKey"`
	ArticleID       int64   `gorm:"column:article_id;primaryKey"`
	SimilarityScore float64 `gorm:"column:similarity_score;type:double precision;not null;default:0"`
}

func (ClusterArticle) TableName() string { return "cluster_articles" }

// Entity maps entities, one row per article.
type Entity struct {
	ID                          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	ArticleID                   int64      `gorm:"column:article_id;type:bigint;not null;uniqueIndex:uq_entities_article_id"`
	People                      StringList `gorm:"column:people"`
	Cities                      StringList `gorm:"column:cities"`
	Regions                     StringList `gorm:"column:regions"`
	Countries                   StringList `gorm:"column:countries"`
	Organizations               StringList `gorm:"column:organizations"`
	PoliticalPartiesAndMilitias StringList `gorm:"column:political_parties_and_militias"`
	Brands                      StringList `gorm:"column:brands"`
	JobTitles                   StringList `gorm:"column:job_titles"`
	Category                    *string    `gorm:"column:category;type:text"`
	CreatedAt                   time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Entity) TableName() string { return "entities" }

func autoMigrateModels() []any {
	return []any{
		&Source{},
		&Article{},
		&Cluster{},
		&ClusterArticle{},
		&Entity{},
	}
}
