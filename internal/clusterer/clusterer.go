// Package clusterer implements single-pass online clustering of embedded
// news documents. Clusters grow greedily: each document either joins the
// most similar eligible cluster or starts a new one.
package clusterer

import (
	"math"
	"sort"
	"time"
)

// Document is one embedded article ready for clustering.
type Document struct {
	ArticleID int64
	SourceID  int64
	Headline  string
	Timestamp time.Time
	Embedding []float64
}

// Member records one assignment inside a cluster.
type Member struct {
	ArticleID  int64
	SourceID   int64
	Similarity float64
	Timestamp  time.Time
}

// Cluster is a live cluster under construction. ID is zero until the
// cluster has been persisted.
type Cluster struct {
	ID             int64
	Title          string
	CreatedAt      time.Time
	LastUpdated    time.Time
	Representative []float64
	Members        []Member

	embeddings       [][]float64
	sources          map[int64]struct{}
	persistedMembers int
	dirty            bool
	isNew            bool
}

// IsNew reports whether the cluster was created during this run.
func (c *Cluster) IsNew() bool { return c.isNew }

// Dirty reports whether the cluster gained members during this run.
func (c *Cluster) Dirty() bool { return c.dirty }

// SourceCount returns the number of distinct sources in the cluster.
func (c *Cluster) SourceCount() int { return len(c.sources) }

// HasSource reports whether the cluster already holds an article from
// the given source.
func (c *Cluster) HasSource(sourceID int64) bool {
	_, ok := c.sources[sourceID]
	return ok
}

// NewAssignments returns the members appended during this run, in
// assignment order.
func (c *Cluster) NewAssignments() []Member {
	if c.persistedMembers >= len(c.Members) {
		return nil
	}
	return c.Members[c.persistedMembers:]
}

// Options tune the clustering pass.
type Options struct {
	SimilarityThreshold float64
	TimeWindow          time.Duration
}

// Engine maintains the live cluster set across one clustering pass.
type Engine struct {
	opts     Options
	clusters []*Cluster
}

func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Seed installs already-persisted clusters as assignment candidates.
// Each seed carries its stored representative vector and the set of
// sources already present among its members.
func (e *Engine) Seed(seeds []*Cluster) {
	for _, seed := range seeds {
		if seed == nil {
			continue
		}
		if seed.sources == nil {
			seed.sources = make(map[int64]struct{}, len(seed.Members))
			for _, m := range seed.Members {
				seed.sources[m.SourceID] = struct{}{}
			}
		}
		if seed.embeddings == nil && len(seed.Representative) > 0 {
			// Member embeddings of persisted clusters are not retained;
			// the stored representative stands in as the single known
			// vector so the mean recomputation stays well-defined.
			seed.embeddings = [][]float64{seed.Representative}
		}
		seed.persistedMembers = len(seed.Members)
		e.clusters = append(e.clusters, seed)
	}
}

// Clusters returns the full live set, seeded and newly created alike.
func (e *Engine) Clusters() []*Cluster { return e.clusters }

// Run processes documents in chronological order. Documents with no
// embedding are skipped and reported back to the caller.
func (e *Engine) Run(docs []Document) (assigned int, skipped []Document) {
	ordered := make([]Document, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for _, doc := range ordered {
		if len(doc.Embedding) == 0 || doc.Timestamp.IsZero() {
			skipped = append(skipped, doc)
			continue
		}
		e.assign(doc)
		assigned++
	}
	return assigned, skipped
}

func (e *Engine) assign(doc Document) *Cluster {
	var best *Cluster
	bestSim := math.Inf(-1)

	for _, c := range e.clusters {
		if !e.inWindow(c, doc.Timestamp) {
			continue
		}
		if c.HasSource(doc.SourceID) {
			continue
		}
		sim := Cosine(doc.Embedding, c.Representative)
		// Strict comparison keeps the first-seen candidate on exact ties.
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}

	if best != nil && bestSim > e.opts.SimilarityThreshold {
		best.addMember(doc, bestSim)
		return best
	}

	singleton := &Cluster{
		Title:       doc.Headline,
		CreatedAt:   doc.Timestamp,
		LastUpdated: doc.Timestamp,
		Members: []Member{{
			ArticleID:  doc.ArticleID,
			SourceID:   doc.SourceID,
			Similarity: 1.0,
			Timestamp:  doc.Timestamp,
		}},
		Representative: append([]float64(nil), doc.Embedding...),
		embeddings:     [][]float64{append([]float64(nil), doc.Embedding...)},
		sources:        map[int64]struct{}{doc.SourceID: {}},
		dirty:          true,
		isNew:          true,
	}
	e.clusters = append(e.clusters, singleton)
	return singleton
}

func (e *Engine) inWindow(c *Cluster, at time.Time) bool {
	delta := at.Sub(c.LastUpdated)
	if delta < 0 {
		delta = -delta
	}
	return delta <= e.opts.TimeWindow
}

func (c *Cluster) addMember(doc Document, similarity float64) {
	c.Members = append(c.Members, Member{
		ArticleID:  doc.ArticleID,
		SourceID:   doc.SourceID,
		Similarity: similarity,
		Timestamp:  doc.Timestamp,
	})
	if c.sources == nil {
		c.sources = make(map[int64]struct{})
	}
	c.sources[doc.SourceID] = struct{}{}
	c.LastUpdated = doc.Timestamp
	c.embeddings = append(c.embeddings, append([]float64(nil), doc.Embedding...))
	c.Representative = meanVector(c.embeddings)
	c.dirty = true
}

// Cosine returns the cosine similarity of two vectors, or 0 when the
// dimensions disagree or either vector has zero magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// meanVector recomputes the full arithmetic mean over all member
// embeddings. Cost grows with cluster size, but the invariant stays
// trivially "representative equals the mean of current members".
func meanVector(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	sum := make([]float64, dims)
	count := 0
	for _, v := range vectors {
		if len(v) != dims {
			continue
		}
		for i := range v {
			sum[i] += v[i]
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(count)
	}
	return sum
}
