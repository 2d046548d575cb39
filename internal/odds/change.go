package odds

import (
	"math"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// RelativePercentChange returns |cur-prev| / prev * 100. A previous value of
// zero yields +Inf, or 0 when cur is also zero.
func RelativePercentChange(prev, cur float64) float64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(cur-prev) / prev * 100
}

// HasSignificantChange reports whether either side's odds moved by more than
// thresholdPct percent relative to prev.
func HasSignificantChange(prev, cur domain.PoolSnapshot, thresholdPct float64) bool {
	yes := RelativePercentChange(prev.YesOdds, cur.YesOdds)
	no := RelativePercentChange(prev.NoOdds, cur.NoOdds)
	return math.Max(yes, no) > thresholdPct
}

// GetDirection compares yes odds only.
func GetDirection(prev, cur domain.PoolSnapshot) domain.Direction {
	switch {
	case cur.YesOdds > prev.YesOdds:
		return domain.DirectionYes
	case cur.YesOdds < prev.YesOdds:
		return domain.DirectionNo
	default:
		return domain.DirectionUnchanged
	}
}
