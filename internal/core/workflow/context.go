package workflow

import (
	coreerrors "github.com/makerflow/runner/pkg/errors"
)

// WorkflowContext is the in-memory and serialized state of one run: the
// step tree, the work queue, wait state, pending decomposition/solution
// handoffs, and metrics. Only MicroTask.Run and FlowRunner mutate it;
// everything else treats it as read-only. Not safe for concurrent writes —
// the scheduler owns one context exclusively per execute call.
type WorkflowContext struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	Domain    string `json:"domain"`
	DryRun    bool   `json:"dry_run"`

	Steps      []*WorkflowStep `json:"steps"`
	RootStepID *int            `json:"root_step_id,omitempty"`
	CurrentStep *int           `json:"current_step,omitempty"`

	PendingDecompositions map[int][]DecompositionProposal `json:"pending_decompositions,omitempty"`
	PendingSolutions      map[int][]string                `json:"pending_solutions,omitempty"`

	WorkQueue []WorkItem `json:"work_queue"`
	WaitState *WaitState `json:"wait_state,omitempty"`

	Metrics SessionMetrics `json:"metrics"`

	DomainData map[string]string `json:"domain_data,omitempty"`

	nextStepID int
}

// NewWorkflowContext builds an empty context for a new session.
func NewWorkflowContext(sessionID, domain, prompt string, dryRun bool) *WorkflowContext {
	return &WorkflowContext{
		SessionID:             sessionID,
		Prompt:                prompt,
		Domain:                domain,
		DryRun:                dryRun,
		Steps:                 nil,
		PendingDecompositions: make(map[int][]DecompositionProposal),
		PendingSolutions:      make(map[int][]string),
		WorkQueue:             nil,
		Metrics: SessionMetrics{
			VoteHistory: make(map[string]*DiscriminatorHistory),
		},
		DomainData: make(map[string]string),
	}
}

// AfterLoad recomputes derived state (next step id counter, nil maps) after
// a JSON round-trip. Callers that unmarshal a context must invoke this
// before use.
func (c *WorkflowContext) AfterLoad() {
	if c.PendingDecompositions == nil {
		c.PendingDecompositions = make(map[int][]DecompositionProposal)
	}
	if c.PendingSolutions == nil {
		c.PendingSolutions = make(map[int][]string)
	}
	if c.Metrics.VoteHistory == nil {
		c.Metrics.VoteHistory = make(map[string]*DiscriminatorHistory)
	}
	if c.DomainData == nil {
		c.DomainData = make(map[string]string)
	}
	max := -1
	for _, s := range c.Steps {
		if s.ID > max {
			max = s.ID
		}
	}
	c.nextStepID = max + 1
}

// Step returns the step with the given id, or nil if unknown.
func (c *WorkflowContext) Step(id int) *WorkflowStep {
	for _, s := range c.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// EnsureRoot creates step 0 from the session prompt if absent. Idempotent:
// calling it twice returns the same root id.
func (c *WorkflowContext) EnsureRoot() int {
	if c.RootStepID != nil {
		return *c.RootStepID
	}
	id := c.newStep(nil, 0, c.Prompt)
	c.RootStepID = &id
	c.CurrentStep = &id
	return id
}

// AddChildStep appends a new step under parent, updating the parent's
// children list. Fails only when parent is unknown.
func (c *WorkflowContext) AddChildStep(parentID int, description string) (int, error) {
	parent := c.Step(parentID)
	if parent == nil {
		return 0, &coreerrors.InvalidStateError{Message: "add_child_step: unknown parent"}
	}
	id := c.newStep(&parentID, parent.Depth+1, description)
	parent.Children = append(parent.Children, id)
	return id, nil
}

func (c *WorkflowContext) newStep(parent *int, depth int, description string) int {
	id := c.nextStepID
	c.nextStepID++
	c.Steps = append(c.Steps, &WorkflowStep{
		ID:          id,
		Parent:      parent,
		Depth:       depth,
		Description: description,
		Status:      StepPending,
		Children:    nil,
	})
	return id
}

// EnqueueWork appends item to the back of the work queue.
func (c *WorkflowContext) EnqueueWork(item WorkItem) {
	c.WorkQueue = append(c.WorkQueue, item)
}

// EnqueueWorkFront prepends item to the work queue.
func (c *WorkflowContext) EnqueueWorkFront(item WorkItem) {
	c.WorkQueue = append([]WorkItem{item}, c.WorkQueue...)
}

// HasPendingWork reports whether the work queue is non-empty.
func (c *WorkflowContext) HasPendingWork() bool {
	return len(c.WorkQueue) > 0
}

// DequeueWork pops and returns the front work item, or false if empty.
func (c *WorkflowContext) DequeueWork() (WorkItem, bool) {
	if len(c.WorkQueue) == 0 {
		return WorkItem{}, false
	}
	item := c.WorkQueue[0]
	c.WorkQueue = c.WorkQueue[1:]
	return item, true
}

// ClearWaitState erases the wait record and, if the target step was
// StepWaitingOnInput, demotes it back to StepPending.
func (c *WorkflowContext) ClearWaitState() {
	if c.WaitState == nil {
		return
	}
	if s := c.Step(c.WaitState.StepID); s != nil && s.Status == StepWaitingOnInput {
		s.Status = StepPending
	}
	c.WaitState = nil
}

// SetWaitState records the wait reason and marks the target step
// StepWaitingOnInput.
func (c *WorkflowContext) SetWaitState(stepID int, trigger, details string) {
	c.WaitState = &WaitState{StepID: stepID, Trigger: trigger, Details: details}
	if s := c.Step(stepID); s != nil {
		s.Status = StepWaitingOnInput
	}
}

// RegisterDecomposition stores proposals for single-consumer handoff via
// TakeDecomposition.
func (c *WorkflowContext) RegisterDecomposition(stepID int, proposals []DecompositionProposal) {
	c.PendingDecompositions[stepID] = proposals
}

// TakeDecomposition removes and returns the pending proposals for stepID.
func (c *WorkflowContext) TakeDecomposition(stepID int) ([]DecompositionProposal, bool) {
	proposals, ok := c.PendingDecompositions[stepID]
	if ok {
		delete(c.PendingDecompositions, stepID)
	}
	return proposals, ok
}

// RegisterSolutions stores candidate solutions for single-consumer handoff.
func (c *WorkflowContext) RegisterSolutions(stepID int, candidates []string) {
	c.PendingSolutions[stepID] = candidates
}

// TakeSolutions removes and returns the pending candidate solutions.
func (c *WorkflowContext) TakeSolutions(stepID int) ([]string, bool) {
	candidates, ok := c.PendingSolutions[stepID]
	if ok {
		delete(c.PendingSolutions, stepID)
	}
	return candidates, ok
}

// DiscriminatorRing returns the ring buffer for kind, creating it on first
// use.
func (c *WorkflowContext) DiscriminatorRing(kind string) *DiscriminatorHistory {
	if c.Metrics.VoteHistory == nil {
		c.Metrics.VoteHistory = make(map[string]*DiscriminatorHistory)
	}
	h, ok := c.Metrics.VoteHistory[kind]
	if !ok {
		h = &DiscriminatorHistory{}
		c.Metrics.VoteHistory[kind] = h
	}
	return h
}
