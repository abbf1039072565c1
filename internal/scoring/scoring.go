// Package scoring rates a measured connection for common use cases:
// streaming, gaming, and video conferencing. Each use case gets a
// quality score derived from the metrics it is most sensitive to, and
// the per-use-case score is the minimum across its component scores.
package scoring

import "encoding/json"

// QualityScore is an ordered connection quality rating.
type QualityScore int

const (
	Poor QualityScore = iota
	Average
	Good
	Great
)

// String returns the rating's display name.
func (q QualityScore) String() string {
	switch q {
	case Great:
		return "Excellent"
	case Good:
		return "Good"
	case Average:
		return "Average"
	default:
		return "Poor"
	}
}

// Name returns the lowercase rating name used in JSON output.
func (q QualityScore) Name() string {
	switch q {
	case Great:
		return "great"
	case Good:
		return "good"
	case Average:
		return "average"
	default:
		return "poor"
	}
}

// MarshalJSON encodes the score as its lowercase name.
func (q QualityScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Name())
}

// AtLeast reports whether q rates at or above other.
func (q QualityScore) AtLeast(other QualityScore) bool {
	return q >= other
}

// Metrics is the measured connection summary the scores derive from.
// LoadedLatencyDownMs, LoadedLatencyUpMs, and PacketLoss are nil when
// not measured.
type Metrics struct {
	DownloadMbps float64
	UploadMbps   float64
	LatencyMs    float64
	JitterMs     float64

	PacketLoss          *float64
	LoadedLatencyDownMs *float64
	LoadedLatencyUpMs   *float64
}

// Scores rates the connection per use case.
type Scores struct {
	Streaming         QualityScore `json:"streaming"`
	Gaming            QualityScore `json:"gaming"`
	VideoConferencing QualityScore `json:"video_conferencing"`
}

// Overall returns the worst of the per-use-case scores.
func (s Scores) Overall() QualityScore {
	return minScore(s.Streaming, s.Gaming, s.VideoConferencing)
}

// Streaming thresholds: download carries the most weight, latency is a
// secondary factor.
const (
	streamingDownloadGreat   = 25.0
	streamingDownloadGood    = 10.0
	streamingDownloadAverage = 5.0

	streamingLatencyGreat   = 100.0
	streamingLatencyGood    = 200.0
	streamingLatencyAverage = 400.0
)

// Gaming thresholds: latency, jitter, and loss dominate; download
// matters less.
const (
	gamingLatencyGreat   = 30.0
	gamingLatencyGood    = 50.0
	gamingLatencyAverage = 100.0

	gamingJitterGreat   = 10.0
	gamingJitterGood    = 20.0
	gamingJitterAverage = 30.0

	gamingLossGreat   = 0.01
	gamingLossGood    = 0.02
	gamingLossAverage = 0.05

	gamingDownloadGreat   = 15.0
	gamingDownloadGood    = 5.0
	gamingDownloadAverage = 3.0
)

// Video conferencing thresholds: balanced two-way bandwidth plus low
// latency and jitter.
const (
	conferencingDownloadGreat   = 10.0
	conferencingDownloadGood    = 5.0
	conferencingDownloadAverage = 2.0

	conferencingUploadGreat   = 10.0
	conferencingUploadGood    = 5.0
	conferencingUploadAverage = 2.0

	conferencingLatencyGreat   = 50.0
	conferencingLatencyGood    = 100.0
	conferencingLatencyAverage = 200.0

	conferencingJitterGreat   = 15.0
	conferencingJitterGood    = 30.0
	conferencingJitterAverage = 50.0

	conferencingLossGreat   = 0.01
	conferencingLossGood    = 0.03
	conferencingLossAverage = 0.05
)

// Calculate rates the connection for every use case.
func Calculate(m Metrics) Scores {
	return Scores{
		Streaming:         streamingScore(m),
		Gaming:            gamingScore(m),
		VideoConferencing: conferencingScore(m),
	}
}

func streamingScore(m Metrics) QualityScore {
	download := rateHigherBetter(m.DownloadMbps,
		streamingDownloadGreat, streamingDownloadGood, streamingDownloadAverage)

	// Loaded downstream latency is what a viewer experiences while the
	// stream saturates the link.
	latency := rateLowerBetter(orDefault(m.LoadedLatencyDownMs, m.LatencyMs),
		streamingLatencyGreat, streamingLatencyGood, streamingLatencyAverage)

	return minScore(download, latency)
}

func gamingScore(m Metrics) QualityScore {
	effectiveLatency := m.LatencyMs
	if m.LoadedLatencyDownMs != nil {
		effectiveLatency = *m.LoadedLatencyDownMs
	} else if m.LoadedLatencyUpMs != nil {
		effectiveLatency = *m.LoadedLatencyUpMs
	}

	latency := rateLowerBetter(effectiveLatency,
		gamingLatencyGreat, gamingLatencyGood, gamingLatencyAverage)
	jitter := rateLowerBetter(m.JitterMs,
		gamingJitterGreat, gamingJitterGood, gamingJitterAverage)
	loss := rateLoss(m.PacketLoss,
		gamingLossGreat, gamingLossGood, gamingLossAverage)
	download := rateHigherBetter(m.DownloadMbps,
		gamingDownloadGreat, gamingDownloadGood, gamingDownloadAverage)

	return minScore(latency, jitter, loss, download)
}

func conferencingScore(m Metrics) QualityScore {
	effectiveLatency := m.LatencyMs
	if m.LoadedLatencyUpMs != nil {
		effectiveLatency = *m.LoadedLatencyUpMs
	} else if m.LoadedLatencyDownMs != nil {
		effectiveLatency = *m.LoadedLatencyDownMs
	}

	download := rateHigherBetter(m.DownloadMbps,
		conferencingDownloadGreat, conferencingDownloadGood, conferencingDownloadAverage)
	upload := rateHigherBetter(m.UploadMbps,
		conferencingUploadGreat, conferencingUploadGood, conferencingUploadAverage)
	latency := rateLowerBetter(effectiveLatency,
		conferencingLatencyGreat, conferencingLatencyGood, conferencingLatencyAverage)
	jitter := rateLowerBetter(m.JitterMs,
		conferencingJitterGreat, conferencingJitterGood, conferencingJitterAverage)
	loss := rateLoss(m.PacketLoss,
		conferencingLossGreat, conferencingLossGood, conferencingLossAverage)

	return minScore(download, upload, latency, jitter, loss)
}

func rateHigherBetter(value, great, good, average float64) QualityScore {
	switch {
	case value >= great:
		return Great
	case value >= good:
		return Good
	case value >= average:
		return Average
	default:
		return Poor
	}
}

func rateLowerBetter(value, great, good, average float64) QualityScore {
	switch {
	case value <= great:
		return Great
	case value <= good:
		return Good
	case value <= average:
		return Average
	default:
		return Poor
	}
}

// rateLoss rates a packet loss ratio. Unmeasured loss is not penalized.
func rateLoss(loss *float64, great, good, average float64) QualityScore {
	if loss == nil {
		return Great
	}
	return rateLowerBetter(*loss, great, good, average)
}

func minScore(scores ...QualityScore) QualityScore {
	lowest := scores[0]
	for _, s := range scores[1:] {
		if s < lowest {
			lowest = s
		}
	}
	return lowest
}

func orDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
