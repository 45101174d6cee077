package quality

import "time"

const (
	maxRTT    = 500 * time.Millisecond
	maxLost   = 100
	maxJitter = 100 * time.Millisecond
)

// Score rates a link in [0,1] from the mean of three linear penalties:
// round-trip time against 500ms, lost packets against 100, jitter against 100ms.
func Score(rtt time.Duration, lost int64, jitter time.Duration) float64 {
	rttScore := clamp(1 - float64(rtt)/float64(maxRTT))
	lossScore := clamp(1 - float64(lost)/maxLost)
	jitterScore := clamp(1 - float64(jitter)/float64(maxJitter))
	return clamp((rttScore + lossScore + jitterScore) / 3)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
