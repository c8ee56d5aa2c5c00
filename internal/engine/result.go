package engine

// EpistemicMetadata states under which interpretation a result was
// produced. Every result carries it; an answer without its frame, time,
// and policy is not an answer this system gives.
type EpistemicMetadata struct {
	FrameID         string `json:"frame_id"`
	FrameVersion    string `json:"frame_version"`
	TimeKind        string `json:"time_kind"`
	TimeValue       string `json:"time_value"`
	Mode            string `json:"mode"`
	Visibility      string `json:"visibility"`
	ConflictPolicy  string `json:"conflict_policy"`
	QueryHash       string `json:"query_hash"`
	PlanFingerprint string `json:"plan_fingerprint"`
	QueryID         string `json:"query_id"`
	ExecutedAt      string `json:"executed_at"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// ResultRow is one answer row plus its epistemic annotations.
type ResultRow struct {
	Values         map[string]any `json:"values"`
	GroundingPath  []string       `json:"grounding_path,omitempty"`
	GroundingDepth int            `json:"grounding_depth,omitempty"`
	WeaklyGrounded bool           `json:"weakly_grounded,omitempty"`
	VisibilityNote string         `json:"visibility_note,omitempty"`
	ClusterID      string         `json:"cluster_id,omitempty"`
	Rank           int            `json:"rank,omitempty"`
	Selected       bool           `json:"selected,omitempty"`
}

// ConflictCluster groups rows competing over the same subject and claim
// type, whether they disagree or corroborate. Status is always
// "competing"; the engine records the contest, it does not adjudicate it.
type ConflictCluster struct {
	ClusterID    string   `json:"cluster_id"`
	SubjectID    string   `json:"subject_id"`
	ClaimType    string   `json:"claim_type"`
	Status       string   `json:"status"`
	AssertionIDs []string `json:"assertion_ids"`
}

// AbsenceResult is a computed absence: a first-class object naming the
// expectation, window, and frame under which something failed to appear.
type AbsenceResult struct {
	AbsenceID          string `json:"absence_id"`
	ExpectationID      string `json:"expectation_id"`
	ExpectationVersion string `json:"expectation_version"`
	ExpectedEntityID   string `json:"expected_entity_id"`
	ExpectedClaimType  string `json:"expected_claim_type"`
	WindowStart        string `json:"window_start"`
	WindowEnd          string `json:"window_end"`
	FrameID            string `json:"frame_id"`
	FrameVersion       string `json:"frame_version"`
	ComputedAt         string `json:"computed_at"`
}

// Explain is the EXPLAIN-mode payload: the artifact, not the answer.
type Explain struct {
	SQL         string   `json:"sql"`
	Stages      []string `json:"stages"`
	Fingerprint string   `json:"fingerprint"`
}

// QueryResult is the complete outcome of executing a plan.
type QueryResult struct {
	Rows      []ResultRow       `json:"rows,omitempty"`
	Absences  []AbsenceResult   `json:"absences,omitempty"`
	Conflicts []ConflictCluster `json:"conflicts,omitempty"`
	Notes     []string          `json:"notes,omitempty"`
	Metadata  EpistemicMetadata `json:"metadata"`
	Explain   *Explain          `json:"explain,omitempty"`
}
