// Command deepagent is a CLI harness over the deepagent execution engine,
// grounded on the teacher's cmd/nexus command-tree layout: a thin cobra
// root wiring config/provider/store construction into engine.Generate and
// friends, every subcommand kept to one small RunE.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deepagents/deepagent/internal/deepagent"
	"github.com/deepagents/deepagent/internal/deepagent/providers"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "deepagent",
		Short:        "deepagent - run, resume, and inspect deep-agent executions",
		Version:      fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(
		buildRunCmd(),
		buildResumeCmd(),
		buildInspectCheckpointCmd(),
	)
	return root
}

// sharedFlags bundles the config knobs every run/resume invocation needs.
type sharedFlags struct {
	provider     string
	model        string
	systemPrompt string
	maxSteps     int
	threadID     string
	checkpointDB string
	workspace    string
	evictLimit   int
}

func (f *sharedFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "anthropic", "Model provider: anthropic or openai")
	cmd.Flags().StringVar(&f.model, "model", "", "Model ID (defaults to the provider's default)")
	cmd.Flags().StringVar(&f.systemPrompt, "system", "", "System prompt")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 100, "Maximum engine steps")
	cmd.Flags().StringVar(&f.threadID, "thread", "default", "Thread ID for checkpointing")
	cmd.Flags().StringVar(&f.checkpointDB, "checkpoint-db", "deepagent.db", "SQLite checkpoint database path")
	cmd.Flags().StringVar(&f.workspace, "workspace", "", "Disk backend root (empty uses an in-memory filesystem)")
	cmd.Flags().IntVar(&f.evictLimit, "evict-limit", 10000, "Tool result eviction threshold in bytes (0 disables)")
}

func (f *sharedFlags) buildModel() (deepagent.ModelClient, error) {
	switch strings.ToLower(f.provider) {
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for --provider=anthropic")
		}
		return providers.NewAnthropicClient(providers.AnthropicConfig{APIKey: key, DefaultModel: f.model})
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for --provider=openai")
		}
		return providers.NewOpenAIClient(providers.OpenAIConfig{APIKey: key, DefaultModel: f.model})
	default:
		return nil, fmt.Errorf("unknown provider %q", f.provider)
	}
}

func (f *sharedFlags) buildBackend() deepagent.Backend {
	if strings.TrimSpace(f.workspace) == "" {
		return nil // engine falls back to a fresh in-memory backend per invocation
	}
	return deepagent.NewDiskBackend(f.workspace, 0)
}

func (f *sharedFlags) buildEngine(ctx context.Context) (*deepagent.Engine, *deepagent.SQLCheckpointStore, error) {
	model, err := f.buildModel()
	if err != nil {
		return nil, nil, err
	}
	store, err := deepagent.NewSQLCheckpointStore(ctx, deepagent.SQLCheckpointStoreConfig{
		Driver: "sqlite", DSN: f.checkpointDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	opts := []deepagent.EngineOption{
		deepagent.WithMaxSteps(f.maxSteps),
		deepagent.WithCheckpointer(store),
	}
	if f.systemPrompt != "" {
		opts = append(opts, deepagent.WithSystemPrompt(f.systemPrompt))
	}
	if f.evictLimit > 0 {
		opts = append(opts, deepagent.WithToolResultEvictionLimit(f.evictLimit))
	}
	if backend := f.buildBackend(); backend != nil {
		opts = append(opts, deepagent.WithBackend(backend))
	}

	cfg := deepagent.NewEngineConfig(model, opts...)
	cfg.ThreadID = f.threadID
	return deepagent.NewEngine(cfg), store, nil
}

func buildRunCmd() *cobra.Command {
	var flags sharedFlags
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run the agent on a prompt, streaming events to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := flags.buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			events := engine.StreamWithEvents(cmd.Context(), deepagent.GenerateOptions{
				Prompt:   args[0],
				MaxSteps: flags.maxSteps,
				ThreadID: flags.threadID,
			})
			return printEvents(out, events)
		},
	}
	flags.register(cmd)
	return cmd
}

func buildResumeCmd() *cobra.Command {
	var flags sharedFlags
	var approve []string
	var deny []string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a checkpointed run, answering any pending approvals",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := flags.buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			var decisions []deepagent.ResumeDecision
			for _, id := range approve {
				decisions = append(decisions, deepagent.ResumeDecision{Type: "approve", ApprovalID: id})
			}
			for _, id := range deny {
				decisions = append(decisions, deepagent.ResumeDecision{Type: "deny", ApprovalID: id})
			}

			out := cmd.OutOrStdout()
			events := engine.StreamWithEvents(cmd.Context(), deepagent.GenerateOptions{
				MaxSteps: flags.maxSteps,
				ThreadID: flags.threadID,
				Resume:   &deepagent.ResumeRequest{Decisions: decisions},
			})
			return printEvents(out, events)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVar(&approve, "approve", nil, "Approval ID to approve (repeatable)")
	cmd.Flags().StringArrayVar(&deny, "deny", nil, "Approval ID to deny (repeatable)")
	return cmd
}

func buildInspectCheckpointCmd() *cobra.Command {
	var checkpointDB string
	var threadID string
	cmd := &cobra.Command{
		Use:   "inspect-checkpoint",
		Short: "Print the latest checkpoint for a thread as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := deepagent.NewSQLCheckpointStore(ctx, deepagent.SQLCheckpointStoreConfig{
				Driver: "sqlite", DSN: checkpointDB,
			})
			if err != nil {
				return fmt.Errorf("open checkpoint store: %w", err)
			}
			defer store.Close()

			cp, err := store.Load(ctx, threadID)
			if err != nil {
				return err
			}
			if cp == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no checkpoint for thread %q\n", threadID)
				return nil
			}
			payload, err := json.MarshalIndent(cp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&checkpointDB, "checkpoint-db", "deepagent.db", "SQLite checkpoint database path")
	cmd.Flags().StringVar(&threadID, "thread", "default", "Thread ID to inspect")
	return cmd
}

// printEvents renders the engine's event stream as human-readable lines,
// grounded on the teacher's CLI stream-printing convention of one line per
// meaningful event rather than a raw JSON dump.
func printEvents(out io.Writer, events <-chan deepagent.Event) error {
	var finalErr error
	for ev := range events {
		switch ev.Type {
		case deepagent.EventText:
			fmt.Fprint(out, ev.Text)
		case deepagent.EventStepStart:
			fmt.Fprintf(out, "\n[step %d]\n", ev.Step)
		case deepagent.EventToolCall:
			fmt.Fprintf(out, "\n-> tool %s(%s)\n", ev.ToolName, truncateForDisplay(ev.ToolArgs))
		case deepagent.EventToolResult:
			marker := "ok"
			if ev.IsError {
				marker = "error"
			}
			fmt.Fprintf(out, "<- %s [%s]: %s\n", ev.ToolName, marker, truncateForDisplay(ev.ToolResult))
		case deepagent.EventApprovalRequested:
			fmt.Fprintf(out, "\n!! approval requested: %s for %s(%s)\n", ev.ApprovalID, ev.ToolName, ev.ToolCallID)
		case deepagent.EventCheckpointSaved:
			fmt.Fprintf(out, "\n[checkpoint saved: thread=%s step=%d]\n", ev.ThreadID, ev.Step)
		case deepagent.EventDone:
			fmt.Fprintln(out, "\n[done]")
		case deepagent.EventError:
			fmt.Fprintf(out, "\n[error: %s] %v\n", ev.ErrorKind, ev.Err)
			finalErr = ev.Err
		}
	}
	return finalErr
}

func truncateForDisplay(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("... (%d more bytes)", len(s)-limit)
}
