package analytics

import (
	"time"
)

// TrendingUpdate is the result of one velocity recomputation.
type TrendingUpdate struct {
	Velocity          float64
	IsTrending        bool
	FirstSeenAt       time.Time
	LastCoverageCheck time.Time
}

// TrendingInput carries the cluster state the velocity computation
// depends on. MemberCreatedAt is the ingestion timestamp of each member
// article; FirstSeenAt is the previously stored value, zero if unset.
type TrendingInput struct {
	ClusterCreatedAt time.Time
	FirstSeenAt      time.Time
	SourceCount      int
	MemberCreatedAt  []time.Time
}

// CalculateTrending recomputes coverage velocity at time now.
// Velocity compares arrivals in the last 6 hours against the prior
// 6-hour window; with no prior coverage the recent count itself stands
// in as the velocity. Trending needs velocity > 1.5 across at least 3
// distinct sources.
func CalculateTrending(in TrendingInput, now time.Time) TrendingUpdate {
	sixHoursAgo := now.Add(-6 * time.Hour)
	twelveHoursAgo := now.Add(-12 * time.Hour)

	var recent, previous int
	for _, created := range in.MemberCreatedAt {
		if created.IsZero() {
			continue
		}
		switch {
		case created.After(sixHoursAgo):
			recent++
		case created.After(twelveHoursAgo):
			previous++
		}
	}

	var velocity float64
	switch {
	case previous > 0:
		velocity = float64(recent) / float64(previous)
	case recent > 0:
		velocity = float64(recent)
	}

	firstSeen := in.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = in.ClusterCreatedAt
	}

	return TrendingUpdate{
		Velocity:          round2(velocity),
		IsTrending:        velocity > 1.5 && in.SourceCount >= 3,
		FirstSeenAt:       firstSeen,
		LastCoverageCheck: now,
	}
}
