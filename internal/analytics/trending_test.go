package analytics

import (
	"math"
	"testing"
	"time"
)

var trendingNow = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

func createdTimes(recentCount, previousCount int) []time.Time {
	out := make([]time.Time, 0, recentCount+previousCount)
	for i := 0; i < recentCount; i++ {
		out = append(out, trendingNow.Add(-2*time.Hour))
	}
	for i := 0; i < previousCount; i++ {
		out = append(out, trendingNow.Add(-9*time.Hour))
	}
	return out
}

func TestCalculateTrendingVelocityRatio(t *testing.T) {
	t.Parallel()

	u := CalculateTrending(TrendingInput{
		ClusterCreatedAt: trendingNow.Add(-24 * time.Hour),
		SourceCount:      4,
		MemberCreatedAt:  createdTimes(5, 2),
	}, trendingNow)

	if math.Abs(u.Velocity-2.5) > 1e-9 {
		t.Fatalf("velocity = %f, want 2.5", u.Velocity)
	}
	if !u.IsTrending {
		t.Fatalf("velocity 2.5 across 4 sources must be trending")
	}
}

func TestCalculateTrendingNoPreviousCoverage(t *testing.T) {
	t.Parallel()

	u := CalculateTrending(TrendingInput{
		SourceCount:     3,
		MemberCreatedAt: createdTimes(3, 0),
	}, trendingNow)
	if u.Velocity != 3.0 {
		t.Fatalf("no prior coverage: velocity = %f, want 3.0", u.Velocity)
	}
	if !u.IsTrending {
		t.Fatalf("velocity 3.0 across 3 sources must be trending")
	}
}

func TestCalculateTrendingNoCoverageAtAll(t *testing.T) {
	t.Parallel()

	u := CalculateTrending(TrendingInput{SourceCount: 5}, trendingNow)
	if u.Velocity != 0 || u.IsTrending {
		t.Fatalf("idle cluster must have zero velocity and not trend: %+v", u)
	}
}

func TestCalculateTrendingNeedsThreeSources(t *testing.T) {
	t.Parallel()

	u := CalculateTrending(TrendingInput{
		SourceCount:     2,
		MemberCreatedAt: createdTimes(6, 1),
	}, trendingNow)
	if u.IsTrending {
		t.Fatalf("fewer than 3 sources must never trend")
	}
}

func TestCalculateTrendingFirstSeenSetOnce(t *testing.T) {
	t.Parallel()

	created := trendingNow.Add(-48 * time.Hour)
	u := CalculateTrending(TrendingInput{ClusterCreatedAt: created}, trendingNow)
	if !u.FirstSeenAt.Equal(created) {
		t.Fatalf("first pass must set firstSeen to cluster creation time")
	}

	earlier := trendingNow.Add(-72 * time.Hour)
	u = CalculateTrending(TrendingInput{
		ClusterCreatedAt: created,
		FirstSeenAt:      earlier,
	}, trendingNow)
	if !u.FirstSeenAt.Equal(earlier) {
		t.Fatalf("stored firstSeen must never be overwritten")
	}
}

func TestCalculateTrendingStampsLastCheck(t *testing.T) {
	t.Parallel()

	u := CalculateTrending(TrendingInput{}, trendingNow)
	if !u.LastCoverageCheck.Equal(trendingNow) {
		t.Fatalf("lastCoverageCheck must be stamped on every invocation")
	}
}
