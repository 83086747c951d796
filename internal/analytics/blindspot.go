// Package analytics computes per-cluster coverage metrics: bias
// blindspot classification and trending velocity.
package analytics

import (
	"math"
	"strings"
)

// Blindspot classification labels.
const (
	BlindspotProSAF    = "PRO_SAF_BLINDSPOT"
	BlindspotOpposeSAF = "OPPOSE_SAF_BLINDSPOT"
	BlindspotNeutral   = "NEUTRAL_ONLY"
	BlindspotPartisan  = "PARTISAN_STORY"
	BlindspotBalanced  = "BALANCED"
)

// BlindspotMetrics summarizes the bias spread of one cluster's coverage.
type BlindspotMetrics struct {
	BlindspotType string
	ProCount      int
	NeutralCount  int
	OpposeCount   int
	BalanceScore  float64
}

// BiasBucket maps a free-form source bias label to one of the three
// tally buckets. The empty string means the source carries no label and
// must be excluded from the tally entirely.
func BiasBucket(label string) string {
	bias := strings.ToLower(strings.TrimSpace(label))
	switch {
	case bias == "":
		return ""
	case strings.Contains(bias, "pro"):
		return "pro"
	case strings.Contains(bias, "oppose"):
		return "oppose"
	default:
		return "neutral"
	}
}

// CalculateBlindspot classifies a cluster from the bias labels of its
// member articles' sources. Unlabeled members are ignored. Returns nil
// when no member carried a label, so callers keep prior stored values.
func CalculateBlindspot(biasLabels []string) *BlindspotMetrics {
	var pro, neutral, oppose int
	for _, label := range biasLabels {
		switch BiasBucket(label) {
		case "pro":
			pro++
		case "oppose":
			oppose++
		case "neutral":
			neutral++
		}
	}

	total := pro + neutral + oppose
	if total == 0 {
		return nil
	}

	proPct := float64(pro) / float64(total) * 100
	neutralPct := float64(neutral) / float64(total) * 100
	opposePct := float64(oppose) / float64(total) * 100

	// First matching rule wins; >70% one side with <15% opposite marks
	// the underrepresented side as the blind spot.
	blindspotType := BlindspotBalanced
	switch {
	case opposePct > 70 && proPct < 15:
		blindspotType = BlindspotProSAF
	case proPct > 70 && opposePct < 15:
		blindspotType = BlindspotOpposeSAF
	case neutralPct > 80 && total > 2:
		blindspotType = BlindspotNeutral
	case neutralPct < 20 && total > 3:
		blindspotType = BlindspotPartisan
	}

	const ideal = 33.33
	variance := math.Abs(proPct-ideal) + math.Abs(neutralPct-ideal) + math.Abs(opposePct-ideal)
	balance := math.Max(0, 1-variance/100)

	return &BlindspotMetrics{
		BlindspotType: blindspotType,
		ProCount:      pro,
		NeutralCount:  neutral,
		OpposeCount:   oppose,
		BalanceScore:  round2(balance),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
