package domain

// ModelResponse wraps one provider call result with its metadata.
// Created once per adapter call, including synthesized failure fallbacks.
type ModelResponse struct {
	Provider   string  // provider identifier, e.g. "groq"
	Score      AiScore // validated (or synthesized) score
	TokensUsed int     // total tokens reported by the provider, 0 if unknown
	LatencyMs  int64   // wall-clock call latency
	Timestamp  int64   // unix ms when the response was created
	Synthetic  bool    // true if this is a failure fallback, not a real reply
}

// ConsensusResult is the merged outcome of both provider calls.
// Immutable once created.
type ConsensusResult struct {
	Responses  []ModelResponse // both responses, real or synthetic
	Merged     AiScore         // conservative merge of the two scores
	ProbDelta  float64         // |p_a - p_b|
	Confidence float64         // overall trust in the merge [0,1]
}
