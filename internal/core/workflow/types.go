// Package workflow holds the core data model for a MAKER-style run: the
// step tree, the work queue, wait state, and per-session/per-step metrics.
// Nothing outside WorkflowContext and the scheduler mutates these types.
package workflow

// StepStatus is the closed set of states a WorkflowStep can occupy.
type StepStatus string

const (
	StepPending        StepStatus = "pending"
	StepRunning        StepStatus = "running"
	StepWaitingOnInput StepStatus = "waiting_on_input"
	StepCompleted      StepStatus = "completed"
	StepFailed         StepStatus = "failed"
)

// WorkItemKind is the closed set of scheduler work-unit kinds.
type WorkItemKind string

const (
	KindDecomposition     WorkItemKind = "decomposition"
	KindDecompositionVote WorkItemKind = "decomposition_vote"
	KindSolve             WorkItemKind = "solve"
	KindSolutionVote      WorkItemKind = "solution_vote"
	KindApplyVerify       WorkItemKind = "apply_verify"
)

// WorkItem is a tagged unit of pending scheduler work targeting one step.
type WorkItem struct {
	Kind   WorkItemKind `json:"kind"`
	StepID int          `json:"step_id"`
}

// DecompositionProposal is one candidate decomposition of a step's
// description into subtasks, as returned raw by the decomposition agent.
type DecompositionProposal struct {
	ID       int      `json:"id"`
	Raw      string   `json:"raw"`
	Subtasks []string `json:"subtasks"`
}

// WaitState is the single-slot pause record. Its presence implies exactly
// one step in the owning context has status StepWaitingOnInput.
type WaitState struct {
	StepID  int    `json:"step_id"`
	Trigger string `json:"trigger"`
	Details string `json:"details"`
}

// RedFlagIncident records one rejected sample during SampleCollector's
// resample loop. Preview is truncated to at most 160 characters.
type RedFlagIncident struct {
	Flagger string `json:"flagger"`
	Reason  string `json:"reason"`
	Preview string `json:"preview"`
}

// StepMetrics are the per-step counters and observations tracked across a
// step's lifetime.
type StepMetrics struct {
	SamplesRequested   int               `json:"samples_requested"`
	SamplesRetained    int               `json:"samples_retained"`
	Resamples          int               `json:"resamples"`
	RedFlags           []RedFlagIncident `json:"red_flags,omitempty"`
	VoteMargin         *int              `json:"vote_margin,omitempty"`
	DurationMs         *int64            `json:"duration_ms,omitempty"`
	VerificationPassed *bool             `json:"verification_passed,omitempty"`
}

// DiscriminatorHistory is the bounded ring buffer of recent vote margins
// for one discriminator agent kind, capacity 8 (oldest evicted first).
type DiscriminatorHistory struct {
	RecentMargins []int `json:"recent_margins"`
}

const ringCapacity = 8

// Push appends a margin, evicting the oldest entry once the ring is full.
func (h *DiscriminatorHistory) Push(margin int) {
	h.RecentMargins = append(h.RecentMargins, margin)
	if len(h.RecentMargins) > ringCapacity {
		h.RecentMargins = h.RecentMargins[len(h.RecentMargins)-ringCapacity:]
	}
}

// Average returns the arithmetic mean of the ring, or 0 if empty.
func (h *DiscriminatorHistory) Average() float64 {
	if len(h.RecentMargins) == 0 {
		return 0
	}
	sum := 0
	for _, m := range h.RecentMargins {
		sum += m
	}
	return float64(sum) / float64(len(h.RecentMargins))
}

// SessionMetrics are the per-session counters accumulated across the run.
type SessionMetrics struct {
	SampleCount       int                              `json:"sample_count"`
	ResampleCount     int                               `json:"resample_count"`
	VoteAttempts      int                               `json:"vote_attempts"`
	DecompositionRuns int                                `json:"decomposition_runs"`
	SolveRuns         int                                `json:"solve_runs"`
	RedFlagHits       int                                `json:"red_flag_hits"`
	VoteHistory       map[string]*DiscriminatorHistory   `json:"vote_history,omitempty"`
}

// WorkflowStep is one node in the flat, numeric-id-keyed step arena.
type WorkflowStep struct {
	ID                int        `json:"id"`
	Parent            *int       `json:"parent,omitempty"`
	Depth             int        `json:"depth"`
	Description       string     `json:"description"`
	Status            StepStatus `json:"status"`
	Children          []int      `json:"children"`
	CandidateSolutions []string  `json:"candidate_solutions,omitempty"`
	WinningSolution   *string    `json:"winning_solution,omitempty"`
	Metrics           StepMetrics `json:"metrics"`
}

// AgentConfig is the runtime configuration for one of the four LM agent
// roles (decomposition, decomposition_discriminator, solver,
// solution_discriminator).
type AgentConfig struct {
	Kind            string   `json:"kind"`
	PromptTemplate  string   `json:"prompt_template"`
	Model           string   `json:"model"`
	Samples         int      `json:"samples"`
	K               *int     `json:"k,omitempty"`
	RedFlaggers     []string `json:"red_flaggers,omitempty"`
}
