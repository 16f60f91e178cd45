package deepagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ResumeDecision answers one pending approval when resuming a run, spec
// §4.5 "Resume": `resume:{decisions:[{type: approve|deny, approvalId}]}`.
type ResumeDecision struct {
	Type       string // "approve" | "deny"
	ApprovalID string
}

// ResumeRequest carries the decisions for a resumed run.
type ResumeRequest struct {
	Decisions []ResumeDecision
}

// GenerateOptions is the per-call input shape spec §6 enumerates for
// `streamWithEvents` (and, narrowed, for `generate`/`stream`).
type GenerateOptions struct {
	Prompt            string
	Messages          []Message
	MaxSteps          int
	State             *State
	ThreadID          string
	Resume            *ResumeRequest
	OnApprovalRequest ApprovalRequestFn
}

// GenerateResult is the terminal value every public operation converges
// on, corresponding to the `done` event's payload (spec §3).
type GenerateResult struct {
	Text     string
	Messages []Message
	State    *State
	Output   any
}

// Engine is the execution engine spec §4.1 describes: built from an
// immutable config, reusable across runs, each run allocating fresh
// per-invocation collaborators (state default, backend, registry,
// dispatcher, approval checker).
type Engine struct {
	cfg          EngineConfig
	constructErr *EngineError
}

// NewEngine constructs an Engine from cfg. Per spec §7, a ConfigError
// (missing model) is meant to surface synchronously at construction;
// since Go idiom avoids panicking constructors, the error is instead
// captured and returned from the first call to any public operation,
// and can be inspected early via Err().
func NewEngine(cfg EngineConfig) *Engine {
	cfg = sanitizeEngineConfig(cfg)
	e := &Engine{cfg: cfg}
	if cfg.Model == nil {
		e.constructErr = NewEngineError(KindConfig, "no model configured")
	}
	return e
}

// Err returns the construction-time ConfigError, if any.
func (e *Engine) Err() error {
	if e.constructErr == nil {
		return nil
	}
	return e.constructErr
}

// Generate runs prompt to completion and returns the final result,
// surfacing adapter-level failures as a Go error (spec §4.1 `generate`).
func (e *Engine) Generate(ctx context.Context, prompt string, maxSteps int) (*GenerateResult, error) {
	return e.run(ctx, GenerateOptions{Prompt: prompt, MaxSteps: maxSteps}, nil)
}

// Stream runs prompt to completion, delivering events on the returned
// channel as they occur; the channel closes once `done` or `error` has
// been delivered (spec §4.1 `stream`).
func (e *Engine) Stream(ctx context.Context, prompt string, maxSteps int) <-chan Event {
	return e.StreamWithEvents(ctx, GenerateOptions{Prompt: prompt, MaxSteps: maxSteps})
}

// GenerateWithState runs prompt to completion against a caller-supplied
// state, mutating it in place (spec §4.1 `generateWithState`).
func (e *Engine) GenerateWithState(ctx context.Context, prompt string, state *State, maxSteps int) (*GenerateResult, error) {
	return e.run(ctx, GenerateOptions{Prompt: prompt, State: state, MaxSteps: maxSteps}, nil)
}

// StreamWithEvents runs opts to completion, never returning a Go error:
// every failure becomes a terminal `error` event on the channel (spec
// §4.1 `streamWithEvents`, §7 "the engine never throws to the caller
// from streamWithEvents").
func (e *Engine) StreamWithEvents(ctx context.Context, opts GenerateOptions) <-chan Event {
	out := make(chan Event, 64)
	go func() {
		defer close(out)
		_, _ = e.run(ctx, opts, func(ev Event) { out <- ev })
	}()
	return out
}

// StreamWithCallback runs opts to completion, delivering every event to
// cb synchronously as it's produced, and returns the terminal result
// (spec §4.1 `streamWithCallback`).
func (e *Engine) StreamWithCallback(ctx context.Context, opts GenerateOptions, cb func(Event)) (*GenerateResult, error) {
	return e.run(ctx, opts, cb)
}

// BoundAgent is an engine handle pre-bound to a particular state (spec
// §4.1 `getAgent`).
type BoundAgent struct {
	engine *Engine
	state  *State
}

// GetAgent returns a handle pre-bound to state (a fresh State if nil).
func (e *Engine) GetAgent(state *State) *BoundAgent {
	if state == nil {
		state = NewState()
	}
	return &BoundAgent{engine: e, state: state}
}

// Generate runs prompt against the bound state.
func (a *BoundAgent) Generate(ctx context.Context, prompt string, maxSteps int) (*GenerateResult, error) {
	return a.engine.run(ctx, GenerateOptions{Prompt: prompt, State: a.state, MaxSteps: maxSteps}, nil)
}

// Stream runs prompt against the bound state, streaming events.
func (a *BoundAgent) Stream(ctx context.Context, prompt string, maxSteps int) <-chan Event {
	return a.engine.StreamWithEvents(ctx, GenerateOptions{Prompt: prompt, State: a.state, MaxSteps: maxSteps})
}

// State returns the bound state.
func (a *BoundAgent) State() *State { return a.state }

func safetyStop(maxSteps int) StopPredicate {
	return func(r StepResult) bool { return r.Step > maxSteps }
}

// safeCall recovers a panicking callback into an error, so a user
// prepareStep/onStepFinish/onFinish cannot take down the engine (spec §7
// UserCallbackError: "caught and logged; engine continues").
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return fn()
}

// parseStructuredOutput validates text as JSON against schema and
// returns the decoded value (spec §4.1 "Structured output").
func parseStructuredOutput(schema json.RawMessage, text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	if len(schema) > 0 {
		compiled, err := compileSchema(schema)
		if err == nil {
			if verr := compiled.Validate(v); verr != nil {
				return nil, fmt.Errorf("output schema validation failed: %w", verr)
			}
		}
	}
	return v, nil
}

// run is the central loop: spec §2's data-flow diagram and §4.1's step
// sequencing, implemented without panics -- every failure path returns
// (nil, *EngineError) and, when emit is non-nil, an `error` event first.
func (e *Engine) run(ctx context.Context, opts GenerateOptions, emit func(Event)) (*GenerateResult, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	cfg := e.cfg

	if e.constructErr != nil {
		ee := e.constructErr
		emit(Event{Type: EventError, Err: ee, ErrorKind: string(ee.Kind), Text: ee.Error()})
		return nil, ee
	}

	threadID := opts.ThreadID
	if threadID == "" {
		threadID = cfg.ThreadID
	}

	state := opts.State
	if state == nil {
		state = NewState()
	}

	queue := NewEventQueue()
	emitter := NewEventEmitter(queue, emit)

	// drain flushes every event buffered since the last drain to emit, in
	// FIFO (causal) order -- the engine is the sole reader of queue (spec
	// §4.2), called at each point a consumer should see progress.
	drain := func() {
		for _, ev := range queue.Drain() {
			emit(ev)
		}
	}

	hasResumeTarget := opts.Resume != nil || threadID != ""
	var checkpointHistory []Message
	resumeStep := 0
	var pendingInterrupt *Interrupt

	if threadID != "" && cfg.Checkpointer != nil {
		cp, err := cfg.Checkpointer.Load(ctx, threadID)
		if err != nil {
			cfg.Logger.Warn("checkpoint load failed", "thread_id", threadID, "error", err)
		} else if cp != nil {
			checkpointHistory = cp.Messages
			resumeStep = cp.Step
			pendingInterrupt = cp.Interrupt
			if cp.State != nil {
				state = cp.State
			}
			emitter.CheckpointLoaded(threadID, cp.Step)
			drain()
		}
	}

	onApproval := opts.OnApprovalRequest
	if onApproval == nil {
		onApproval = cfg.OnApprovalRequest
	}
	checker := NewApprovalChecker(cfg.InterruptOn, onApproval, emitter)
	if pendingInterrupt != nil {
		checker.Seed(*pendingInterrupt)
	}

	backend := cfg.Backend
	if backend == nil && cfg.BackendFactory != nil {
		backend = cfg.BackendFactory(state)
	}
	if backend == nil {
		backend = NewMemoryBackend(state)
	}

	var dispatcher *SubAgentDispatcher
	if cfg.IncludeGeneralPurposeAgent || len(cfg.SubAgents) > 0 {
		dispatcher = NewSubAgentDispatcher(cfg.SubAgents, cfg.IncludeGeneralPurposeAgent, int(cfg.SubAgentMaxActive), cfg)
	}

	registry, rawRegistry := BuildRegistry(state, backend, cfg.UserTools, dispatcher, checker, emitter)

	// Resume: a matching decision clears the loaded interrupt. On approve,
	// the tool is actually re-invoked (bypassing approval via rawRegistry,
	// since the caller's decision *is* the approval) and its real result
	// replaces the original "[denied by user]" entry in place -- appending
	// a second tool-result message for the same tool-call id would leave
	// two results paired to one call.
	if opts.Resume != nil && pendingInterrupt != nil {
		for _, d := range opts.Resume.Decisions {
			if d.ApprovalID != pendingInterrupt.ApprovalID {
				continue
			}
			approve := strings.EqualFold(d.Type, "approve")
			resolved, ok := checker.Resolve(d.ApprovalID, approve)
			if !ok {
				resolved = *pendingInterrupt
			}
			pendingInterrupt = nil
			if approve {
				result, terr := rawRegistry.Execute(ctx, resolved.ToolName, resolved.Args)
				content, isError := "", true
				if terr != nil {
					content = terr.Error()
				} else {
					content = result.Content
					isError = result.IsError
				}
				emitter.ToolResultEvent(resolved.ToolCallID, resolved.ToolName, content, isError)
				if !replaceToolResult(checkpointHistory, resolved.ToolCallID, content, isError) {
					checkpointHistory = append(checkpointHistory, Message{
						Role:        RoleTool,
						ToolResults: []ToolResultMsg{{ToolCallID: resolved.ToolCallID, Content: content, IsError: isError}},
					})
				}
			}
			break
		}
		drain()
	}

	reqTemplate := CompletionRequest{
		System:          cfg.SystemPrompt,
		MaxTokens:       cfg.GenerationOptions.MaxOutputTokens,
		Temperature:     cfg.GenerationOptions.Temperature,
		TopP:            cfg.GenerationOptions.TopP,
		TopK:            cfg.GenerationOptions.TopK,
		Seed:            cfg.GenerationOptions.Seed,
		StopSequences:   cfg.GenerationOptions.StopSequences,
		ProviderOptions: cfg.AdvancedOptions.ProviderOptions,
	}
	if cfg.Output != nil {
		reqTemplate.OutputSchema = cfg.Output.Schema
	}
	if cfg.EnablePromptCaching {
		if reqTemplate.ProviderOptions == nil {
			reqTemplate.ProviderOptions = map[string]any{}
		}
		reqTemplate.ProviderOptions["cache_control"] = map[string]any{"type": "ephemeral"}
	}

	pipeline := &MessagePipeline{Summarization: cfg.Summarization}
	pr, err := pipeline.Resolve(ctx, reqTemplate, opts.Prompt, opts.Messages, checkpointHistory, hasResumeTarget)
	if err != nil {
		ee := NewEngineError(KindInput, "message pipeline failed").WithCause(err).WithThreadID(threadID)
		emitter.Error(ee, KindInput)
		cfg.Metrics.observeError(KindInput)
		drain()
		return nil, ee
	}
	if pr.ImmediateDone {
		emitter.Done(state, "", nil, nil)
		drain()
		return &GenerateResult{State: state}, nil
	}
	messages := pr.Messages

	var evictor *Evictor
	if cfg.ToolResultEvictionLimit > 0 {
		evictor = &Evictor{Backend: backend, ThresholdBytes: cfg.ToolResultEvictionLimit}
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = cfg.MaxSteps
	}
	stopPreds := append([]StopPredicate{safetyStop(maxSteps)}, cfg.LoopControl.StopWhen...)

	step := resumeStep
	var lastText string
	var lastToolCalls []ToolCall

runLoop:
	for {
		step++
		snapshot := StepResult{Step: step, Text: lastText, ToolCalls: lastToolCalls}
		for _, pred := range stopPreds {
			if pred(snapshot) {
				break runLoop
			}
		}

		model := cfg.Model
		if cfg.LoopControl.PrepareStep != nil {
			if prepared, perr := cfg.LoopControl.PrepareStep(ctx, step); perr != nil {
				cfg.Logger.Warn("prepareStep failed, using defaults", "step", step, "error", perr)
			} else if prepared.Model != nil {
				model = prepared.Model
			}
		}
		if model == nil {
			ee := NewEngineError(KindConfig, "no model configured").WithThreadID(threadID).WithStep(step)
			emitter.Error(ee, KindConfig)
			cfg.Metrics.observeError(KindConfig)
			drain()
			return nil, ee
		}

		emitter.StepStart(step)
		drain()
		stepStarted := time.Now()

		stepCtx, stepSpan := cfg.Telemetry.StartStep(ctx, threadID, step)

		req := reqTemplate
		req.Messages = messages
		req.Tools = registry.AsModelTools()

		modelCtx, modelSpan := cfg.Telemetry.StartModelCall(stepCtx, model.Name())
		chunks, cerr := model.Complete(modelCtx, &req)
		if cerr != nil {
			cfg.Telemetry.RecordError(modelSpan, cerr)
			modelSpan.End()
			stepSpan.End()
			ee := NewEngineError(KindModel, "model call failed").WithCause(cerr).WithThreadID(threadID).WithStep(step)
			emitter.Error(ee, KindModel)
			cfg.Metrics.observeError(KindModel)
			drain()
			return nil, ee
		}

		var stepText strings.Builder
		var stepToolCalls []ToolCall
		var stepToolResults []Message
		cancelled := false

		for chunk := range chunks {
			if ctx.Err() != nil {
				cancelled = true
				continue
			}
			if chunk.Error != nil {
				cfg.Telemetry.RecordError(modelSpan, chunk.Error)
				modelSpan.End()
				stepSpan.End()
				ee := NewEngineError(KindModel, "model stream error").WithCause(chunk.Error).WithThreadID(threadID).WithStep(step)
				emitter.Error(ee, KindModel)
				cfg.Metrics.observeError(KindModel)
				drain()
				return nil, ee
			}
			if chunk.Text != "" {
				stepText.WriteString(chunk.Text)
				emitter.TextDelta(chunk.Text)
			}
			if chunk.ToolCall != nil {
				tc := *chunk.ToolCall
				stepToolCalls = append(stepToolCalls, tc)
				emitter.ToolCallEvent(tc.ID, tc.Name, string(tc.Input))

				callCtx := withToolCallID(stepCtx, tc.ID)
				result, terr := registry.Execute(callCtx, tc.Name, tc.Input)
				drain()
				if terr != nil {
					result = &ToolExecResult{Content: terr.Error(), IsError: true}
				}
				content := result.Content
				if evictor != nil {
					if evicted, ok, everr := evictor.EvictIfOversized(ctx, tc.ID, content); everr == nil && ok {
						content = evicted
					}
				}
				emitter.ToolResultEvent(tc.ID, tc.Name, content, result.IsError)
				cfg.Metrics.observeToolResult(tc.Name, result.IsError)
				stepToolResults = append(stepToolResults, Message{
					Role:        RoleTool,
					ToolResults: []ToolResultMsg{{ToolCallID: tc.ID, Content: content, IsError: result.IsError}},
				})
			}
			drain()
		}
		modelSpan.End()

		if cancelled {
			stepSpan.End()
			ee := NewEngineError(KindCancelled, "run cancelled").WithThreadID(threadID).WithStep(step)
			emitter.Error(ee, KindCancelled)
			cfg.Metrics.observeError(KindCancelled)
			drain()
			return nil, ee
		}

		finalText := stepText.String()
		if finalText != "" || len(stepToolCalls) > 0 {
			messages = append(messages, Message{Role: RoleAssistant, Content: finalText, ToolCalls: stepToolCalls})
		}
		messages = append(messages, stepToolResults...)
		lastText = finalText
		lastToolCalls = stepToolCalls

		if cfg.LoopControl.OnStepFinish != nil {
			stepSnapshot := StepResult{Step: step, Text: finalText, ToolCalls: stepToolCalls}
			if cberr := safeCall(func() error { return cfg.LoopControl.OnStepFinish(ctx, stepSnapshot) }); cberr != nil {
				cfg.Logger.Warn("onStepFinish error", "step", step, "error", cberr)
			}
		}

		emitter.StepFinish(step, stepToolCalls)
		if cfg.Metrics != nil {
			cfg.Metrics.StepsTotal.Inc()
			cfg.Metrics.StepDuration.Observe(time.Since(stepStarted).Seconds())
		}

		if evictor != nil {
			if err := evictor.EvictMessages(ctx, messages, emitter); err != nil {
				cfg.Logger.Warn("eviction failed, keeping result in-message", "error", err)
			}
		}

		if cfg.Checkpointer != nil && threadID != "" {
			var interrupt *Interrupt
			if pendings := checker.Pending(); len(pendings) > 0 {
				p := pendings[0]
				interrupt = &Interrupt{ApprovalID: p.ApprovalID, ToolCallID: p.ToolCallID, ToolName: p.ToolName, Args: p.Args}
			}
			cp := &Checkpoint{
				ThreadID:  threadID,
				Step:      step,
				Messages:  patchDanglingToolCalls(messages),
				State:     state,
				Interrupt: interrupt,
			}
			if serr := cfg.Checkpointer.Save(ctx, cp); serr != nil {
				cfg.Logger.Warn("checkpoint save failed", "thread_id", threadID, "step", step, "error", serr)
			} else {
				emitter.CheckpointSaved(threadID, step)
			}
		}
		drain()
		stepSpan.End()

		if len(stepToolCalls) == 0 {
			break
		}
	}

	var output any
	if cfg.Output != nil {
		parsed, operr := parseStructuredOutput(cfg.Output.Schema, lastText)
		if operr != nil {
			ee := NewEngineError(KindModel, "structured output validation failed").WithCause(operr).WithThreadID(threadID).WithStep(step)
			emitter.Error(ee, KindModel)
			cfg.Metrics.observeError(KindModel)
		} else {
			output = parsed
		}
	}

	if cfg.LoopControl.OnFinish != nil {
		finishSnapshot := StepResult{Step: step, Text: lastText, ToolCalls: lastToolCalls}
		if cberr := safeCall(func() error { return cfg.LoopControl.OnFinish(ctx, finishSnapshot) }); cberr != nil {
			cfg.Logger.Warn("onFinish error", "error", cberr)
		}
	}

	emitter.Done(state, lastText, messages, output)

	if cfg.Checkpointer != nil && threadID != "" {
		cp := &Checkpoint{ThreadID: threadID, Step: step, Messages: patchDanglingToolCalls(messages), State: state}
		if pendings := checker.Pending(); len(pendings) > 0 {
			p := pendings[0]
			cp.Interrupt = &Interrupt{ApprovalID: p.ApprovalID, ToolCallID: p.ToolCallID, ToolName: p.ToolName, Args: p.Args}
		}
		if serr := cfg.Checkpointer.Save(ctx, cp); serr == nil {
			emitter.CheckpointSaved(threadID, step)
		} else {
			cfg.Logger.Warn("final checkpoint save failed", "thread_id", threadID, "error", serr)
		}
	}
	drain()

	return &GenerateResult{Text: lastText, Messages: messages, State: state, Output: output}, nil
}
