package deepagent

import (
	"context"
	"encoding/json"
)

// StepResult is the snapshot passed to loop-control callbacks and stop
// predicates, per spec §4.1's `{steps, text, toolCalls}`.
type StepResult struct {
	Step      int
	Text      string
	ToolCalls []ToolCall
}

// PrepareStepResult lets a user prepareStep callback override per-step
// model choice, tool choice, or active tool set (spec §4.1 "Prepare-step
// contract"). Zero-value fields mean "no override".
type PrepareStepResult struct {
	Model       ModelClient
	ToolChoice  string
	ActiveTools []string
}

// StopPredicate evaluates accumulated run data and returns true when the
// loop should halt, per spec §4.1 "Stop conditions".
type StopPredicate func(StepResult) bool

// LoopControl carries the user-injected callbacks spec §6 names under
// `loopControl`. Nil fields are simply skipped; no method-override
// subclassing, per spec §9's "callbacks as injected functions" note.
type LoopControl struct {
	PrepareStep  func(ctx context.Context, step int) (PrepareStepResult, error)
	OnStepFinish func(ctx context.Context, result StepResult) error
	OnFinish     func(ctx context.Context, result StepResult) error
	StopWhen     []StopPredicate
}

// GenerationOptions is the passthrough call-settings bundle spec §6
// enumerates. Temperature, TopP, TopK, MaxOutputTokens, Seed and
// StopSequences ride along on every CompletionRequest, including the
// dedicated summarization call (spec §4.3 item 3, §6 "Summarization
// contract"); PresencePenalty, FrequencyPenalty and MaxRetries are not
// copied into the request.
type GenerationOptions struct {
	Temperature       *float64
	TopP              *float64
	TopK              *int
	MaxOutputTokens   int
	PresencePenalty   *float64
	FrequencyPenalty  *float64
	Seed              *int
	StopSequences     []string
	MaxRetries        int // default 2
}

func (g GenerationOptions) sanitized() GenerationOptions {
	if g.MaxRetries <= 0 {
		g.MaxRetries = 2
	}
	return g
}

// AdvancedOptions is the opaque-passthrough bundle spec §6 names;
// the engine never interprets these beyond merging them into requests
// and into sub-agent configs (spec §4.4 "merged
// {...parentAdvancedOptions, ...subagentAdvancedOptions}").
type AdvancedOptions struct {
	ExperimentalTelemetry map[string]any
	ProviderOptions       map[string]any
	ExperimentalContext   map[string]any
	ToolChoice            string
	ActiveTools           []string
}

func mergeAdvancedOptions(parent, child AdvancedOptions) AdvancedOptions {
	out := parent
	if child.ExperimentalTelemetry != nil {
		out.ExperimentalTelemetry = child.ExperimentalTelemetry
	}
	if child.ProviderOptions != nil {
		out.ProviderOptions = child.ProviderOptions
	}
	if child.ExperimentalContext != nil {
		out.ExperimentalContext = child.ExperimentalContext
	}
	if child.ToolChoice != "" {
		out.ToolChoice = child.ToolChoice
	}
	if child.ActiveTools != nil {
		out.ActiveTools = child.ActiveTools
	}
	return out
}

// OutputSpec configures structured-output parsing, spec §6 `output`.
type OutputSpec struct {
	Schema      json.RawMessage
	Description string
}

// BackendFactory builds a Backend bound to a specific invocation's state,
// spec §6's "factory state → backend" alternative to a fixed instance.
type BackendFactory func(state *State) Backend

// EngineConfig is the immutable construction config spec §3 "Lifecycle"
// and §6 describe, grounded on the teacher's executor/loop config pairs
// (internal/agent/loop.go DefaultLoopConfig, internal/agent/executor.go
// DefaultExecutorConfig): a plain struct plus a sanitize step, rather
// than a builder object.
type EngineConfig struct {
	Model ModelClient

	SystemPrompt              string
	UserTools                 []Tool
	SubAgents                 []SubAgentSpec
	IncludeGeneralPurposeAgent bool // default true
	MaxSteps                  int  // default 100
	SubAgentMaxSteps          int  // default 50, spec §4.4
	SubAgentMaxActive         int64 // default 0, which the dispatcher treats as a cap of 5

	Backend        Backend
	BackendFactory BackendFactory

	ToolResultEvictionLimit int // bytes; 0 disables eviction
	EnablePromptCaching     bool

	Summarization SummarizationConfig

	InterruptOn        map[string]ApprovalPolicy
	OnApprovalRequest  ApprovalRequestFn
	Checkpointer       CheckpointStore

	SkillsDir string
	AgentID   string

	Output *OutputSpec

	LoopControl LoopControl

	GenerationOptions GenerationOptions
	AdvancedOptions   AdvancedOptions

	Logger    Logger
	Metrics   *Metrics
	Telemetry *Tracer

	ThreadID string
}

// DefaultEngineConfig returns a config with every optional field at its
// spec-documented default, mirroring the teacher's
// DefaultLoopConfig/DefaultExecutorConfig pair.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		IncludeGeneralPurposeAgent: true,
		MaxSteps:                  100,
		SubAgentMaxSteps:          50,
		GenerationOptions:         GenerationOptions{MaxRetries: 2},
	}
}

// sanitizeEngineConfig fills in defaults for any zero-valued field left
// unset by the caller, grounded on the teacher's sanitizeLoopConfig /
// sanitizeExecutorConfig pattern. It does not validate required fields
// (Model) -- that is the ConfigError path in NewEngine.
func sanitizeEngineConfig(cfg EngineConfig) EngineConfig {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 100
	}
	if cfg.SubAgentMaxSteps <= 0 {
		cfg.SubAgentMaxSteps = 50
	}
	cfg.GenerationOptions = cfg.GenerationOptions.sanitized()
	cfg.Summarization = cfg.Summarization.sanitized()
	if cfg.Logger == nil {
		cfg.Logger = NewNopLogger()
	}
	return cfg
}

// EngineOption configures an EngineConfig via the functional-options
// pattern, mirroring the teacher's with-style constructors.
type EngineOption func(*EngineConfig)

// WithMaxSteps overrides the safety step cap (spec §4.1, default 100).
func WithMaxSteps(n int) EngineOption {
	return func(c *EngineConfig) { c.MaxSteps = n }
}

// WithCheckpointer installs a CheckpointStore (spec §4.6).
func WithCheckpointer(store CheckpointStore) EngineOption {
	return func(c *EngineConfig) { c.Checkpointer = store }
}

// WithBackend installs a fixed Backend instance (spec §6 `backend`).
func WithBackend(b Backend) EngineOption {
	return func(c *EngineConfig) { c.Backend = b }
}

// WithBackendFactory installs a per-invocation Backend factory (spec §6
// `backend` factory form).
func WithBackendFactory(f BackendFactory) EngineOption {
	return func(c *EngineConfig) { c.BackendFactory = f }
}

// WithSystemPrompt sets the engine's system prompt.
func WithSystemPrompt(prompt string) EngineOption {
	return func(c *EngineConfig) { c.SystemPrompt = prompt }
}

// WithTools appends user tools (spec §6 `tools`).
func WithTools(tools ...Tool) EngineOption {
	return func(c *EngineConfig) { c.UserTools = append(c.UserTools, tools...) }
}

// WithSubAgents declares sub-agent specs (spec §6 `subagents`).
func WithSubAgents(specs ...SubAgentSpec) EngineOption {
	return func(c *EngineConfig) { c.SubAgents = append(c.SubAgents, specs...) }
}

// WithGeneralPurposeAgent toggles the implicit general-purpose sub-agent
// (spec §6 `includeGeneralPurposeAgent`, default true).
func WithGeneralPurposeAgent(include bool) EngineOption {
	return func(c *EngineConfig) { c.IncludeGeneralPurposeAgent = include }
}

// WithToolResultEvictionLimit enables eviction at the given byte
// threshold (spec §6 `toolResultEvictionLimit`).
func WithToolResultEvictionLimit(bytes int) EngineOption {
	return func(c *EngineConfig) { c.ToolResultEvictionLimit = bytes }
}

// WithSummarization enables/configures summarization (spec §6
// `summarization`).
func WithSummarization(cfg SummarizationConfig) EngineOption {
	return func(c *EngineConfig) { c.Summarization = cfg }
}

// WithInterruptOn installs the per-tool approval policy map (spec §6
// `interruptOn`) and the approval-request callback.
func WithInterruptOn(policies map[string]ApprovalPolicy, onApproval ApprovalRequestFn) EngineOption {
	return func(c *EngineConfig) {
		c.InterruptOn = policies
		c.OnApprovalRequest = onApproval
	}
}

// WithLoopControl installs user callbacks (spec §6 `loopControl`).
func WithLoopControl(lc LoopControl) EngineOption {
	return func(c *EngineConfig) { c.LoopControl = lc }
}

// WithOutput configures structured-output parsing (spec §6 `output`).
func WithOutput(schema json.RawMessage, description string) EngineOption {
	return func(c *EngineConfig) { c.Output = &OutputSpec{Schema: schema, Description: description} }
}

// WithLogger installs a structured logger (ambient stack, §7 expansion).
func WithLogger(l Logger) EngineOption {
	return func(c *EngineConfig) { c.Logger = l }
}

// NewEngineConfig applies DefaultEngineConfig then every opt in order,
// the functional-options entry point callers use alongside NewEngine.
func NewEngineConfig(model ModelClient, opts ...EngineOption) EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.Model = model
	for _, opt := range opts {
		opt(&cfg)
	}
	return sanitizeEngineConfig(cfg)
}
