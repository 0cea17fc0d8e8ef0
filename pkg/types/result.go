package types

// ChannelResult is one fragment returned by a single retrieval channel.
// Vector channels report a similarity distance; keyword, tag, and
// relation channels do not. The HasDistance tag keeps the reranker's
// scoring exhaustive instead of relying on a magic sentinel value.
type ChannelResult struct {
	Fragment    Fragment
	Channel     string
	Distance    float64
	HasDistance bool
}

// WithDistance builds a channel result carrying a similarity distance.
func WithDistance(frag Fragment, channel string, distance float64) ChannelResult {
	return ChannelResult{
		Fragment:    frag,
		Channel:     channel,
		Distance:    distance,
		HasDistance: true,
	}
}

// NoDistance builds a channel result from a non-vector channel.
func NoDistance(frag Fragment, channel string) ChannelResult {
	return ChannelResult{
		Fragment: frag,
		Channel:  channel,
	}
}

// ScoredFragment is a fragment after merge and rerank. The fragment is
// embedded so pipeline code reads its fields directly.
type ScoredFragment struct {
	Fragment    `json:"fragment"`
	Channel     string  `json:"channel"`
	Distance    float64 `json:"distance"`
	HasDistance bool    `json:"hasDistance"`
	FinalScore  float64 `json:"finalScore"`
}
