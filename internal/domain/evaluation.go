package domain

// EvaluationRecord is one completed pipeline run, as persisted.
// Corresponds to the evaluations table in PostgreSQL.
type EvaluationRecord struct {
	EvaluationID string // PRIMARY KEY, deterministic hash of (mint, discovered_at)
	Mint         string
	Symbol       string

	Snapshot  TokenSnapshot
	Consensus ConsensusResult
	Breakdown ScoreBreakdown
	Risk      RiskAnalysis
	Decision  BuyDecision

	EvaluatedAt int64 // unix ms when the pipeline finished
	CreatedAt   int64 // record creation timestamp (ms)
}

// ScorePoint is the compact per-evaluation row kept in the analytics
// history (ClickHouse). Append-only.
type ScorePoint struct {
	EvaluationID string
	Mint         string
	Symbol       string
	FinalScore   int
	Confidence   float64
	ProbDelta    float64
	RiskLevel    RiskLevel
	Buy          bool
	TimestampMs  int64
}
