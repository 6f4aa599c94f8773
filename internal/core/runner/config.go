package runner

import "github.com/makerflow/runner/internal/core/workflow"

// RunnerOptions are the process-wide scheduler knobs. A threshold of 0
// disables its pause.
type RunnerOptions struct {
	DefaultSamples           int
	DefaultK                 int
	AdaptiveK                bool
	MaxDecompositionDepth    int
	MinWordsForDecomposition int
	HumanRedFlagThreshold    int
	HumanResampleThreshold   int
	HumanLowMarginThreshold  int
	StepByStep               bool
}

// DomainRuntimeConfig is the externally-rendered configuration for one
// domain: the four agent roles plus the optional applier/verifier and
// default red-flagger list.
type DomainRuntimeConfig struct {
	Decomposition              workflow.AgentConfig
	DecompositionDiscriminator workflow.AgentConfig
	Solver                     workflow.AgentConfig
	SolutionDiscriminator      workflow.AgentConfig
	Applier                    string
	Verifier                   string
	DefaultRedFlaggers         []string
}

// ConfigResolver resolves a domain name to its runtime configuration.
type ConfigResolver interface {
	ResolveDomain(domain string) (DomainRuntimeConfig, error)
}
