package clusterer

import (
	"math"
	"testing"
	"time"
)

var clusterBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func doc(id, source int64, offset time.Duration, embedding ...float64) Document {
	return Document{
		ArticleID: id,
		SourceID:  source,
		Headline:  "headline",
		Timestamp: clusterBase.Add(offset),
		Embedding: embedding,
	}
}

func defaultEngine() *Engine {
	return New(Options{
		SimilarityThreshold: 0.5,
		TimeWindow:          72 * time.Hour,
	})
}

func TestRunPartitionsEveryDocument(t *testing.T) {
	t.Parallel()

	e := defaultEngine()
	docs := []Document{
		doc(1, 1, 0, 1, 0),
		doc(2, 2, time.Hour, 0.95, 0.05),
		doc(3, 3, 2*time.Hour, 0, 1),
	}

	assigned, skipped := e.Run(docs)
	if assigned != 3 || len(skipped) != 0 {
		t.Fatalf("assigned=%d skipped=%d, want 3/0", assigned, len(skipped))
	}

	seen := map[int64]int{}
	for _, c := range e.Clusters() {
		for _, m := range c.Members {
			seen[m.ArticleID]++
		}
	}
	for id := int64(1); id <= 3; id++ {
		if seen[id] != 1 {
			t.Fatalf("article %d appears in %d clusters, want exactly 1", id, seen[id])
		}
	}
}

func TestSourceUniquenessWithinCluster(t *testing.T) {
	t.Parallel()

	e := defaultEngine()
	// Same source twice with identical embeddings: the second must open
	// its own cluster because the first cluster already holds source 1.
	e.Run([]Document{
		doc(1, 1, 0, 1, 0),
		doc(2, 1, time.Hour, 1, 0),
	})

	clusters := e.Clusters()
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	for _, c := range clusters {
		seen := map[int64]bool{}
		for _, m := range c.Members {
			if seen[m.SourceID] {
				t.Fatalf("cluster holds two members from source %d", m.SourceID)
			}
			seen[m.SourceID] = true
		}
	}
}

func TestRepresentativeEqualsMeanOfMembers(t *testing.T) {
	t.Parallel()

	e := defaultEngine()
	e.Run([]Document{
		doc(1, 1, 0, 1, 0),
		doc(2, 2, time.Hour, 0.8, 0.6),
	})

	clusters := e.Clusters()
	if len(clusters) != 1 {
		t.Fatalf("expected single cluster, got %d", len(clusters))
	}
	c := clusters[0]
	want := []float64{(1 + 0.8) / 2, (0 + 0.6) / 2}
	for i, v := range want {
		if math.Abs(c.Representative[i]-v) > 1e-9 {
			t.Fatalf("representative[%d] = %f, want %f", i, c.Representative[i], v)
		}
	}
}

func TestExactTieKeepsFirstSeenCluster(t *testing.T) {
	t.Parallel()

	// Two seeded clusters with identical representatives, then a
	// document equally similar to both. The earlier candidate wins.
	e := defaultEngine()
	e.Seed([]*Cluster{
		{ID: 10, CreatedAt: clusterBase, LastUpdated: clusterBase, Representative: []float64{1, 0}},
		{ID: 20, CreatedAt: clusterBase, LastUpdated: clusterBase, Representative: []float64{1, 0}},
	})
	e.Run([]Document{doc(3, 3, time.Hour, 1, 0)})

	for _, c := range e.Clusters() {
		if c.ID == 10 && len(c.NewAssignments()) != 1 {
			t.Fatalf("tie must resolve to the first-seen cluster (10)")
		}
		if c.ID == 20 && len(c.NewAssignments()) != 0 {
			t.Fatalf("second cluster (20) must not win an exact tie")
		}
	}
}

func TestTimeWindowExcludesStaleClusters(t *testing.T) {
	t.Parallel()

	e := New(Options{SimilarityThreshold: 0.5, TimeWindow: 72 * time.Hour})
	e.Run([]Document{
		doc(1, 1, 0, 1, 0),
		doc(2, 2, 80*time.Hour, 1, 0),
	})

	if len(e.Clusters()) != 2 {
		t.Fatalf("article outside the time window must start a new cluster, got %d clusters", len(e.Clusters()))
	}
}

func TestSingletonRecordsSelfSimilarity(t *testing.T) {
	t.Parallel()

	e := defaultEngine()
	e.Run([]Document{doc(1, 1, 0, 0.3, 0.7)})

	c := e.Clusters()[0]
	if !c.IsNew() || len(c.Members) != 1 {
		t.Fatalf("expected one fresh singleton")
	}
	if c.Members[0].Similarity != 1.0 {
		t.Fatalf("singleton similarity = %f, want 1.0", c.Members[0].Similarity)
	}
	if c.Title != "headline" {
		t.Fatalf("cluster title must come from the founding headline")
	}
}

func TestEmptyRunIsNoOp(t *testing.T) {
	t.Parallel()

	e := defaultEngine()
	seed := &Cluster{ID: 7, CreatedAt: clusterBase, LastUpdated: clusterBase, Representative: []float64{1, 0}}
	e.Seed([]*Cluster{seed})

	assigned, skipped := e.Run(nil)
	if assigned != 0 || len(skipped) != 0 {
		t.Fatalf("empty input must assign nothing")
	}
	if len(e.Clusters()) != 1 || e.Clusters()[0].Dirty() {
		t.Fatalf("empty run must not create or mutate clusters")
	}
}

func TestRunSkipsDocumentsWithoutEmbeddings(t *testing.T) {
	t.Parallel()

	e := defaultEngine()
	assigned, skipped := e.Run([]Document{
		doc(1, 1, 0, 1, 0),
		{ArticleID: 2, SourceID: 2, Timestamp: clusterBase.Add(time.Hour)},
	})
	if assigned != 1 || len(skipped) != 1 || skipped[0].ArticleID != 2 {
		t.Fatalf("document without embedding must be skipped, assigned=%d skipped=%v", assigned, skipped)
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float64{1, 0}, []float64{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: got %f", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: got %f", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{0, 0}); got != 0 {
		t.Fatalf("zero vector: got %f", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{1}); got != 0 {
		t.Fatalf("dimension mismatch: got %f", got)
	}
}
