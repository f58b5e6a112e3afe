// Command replctl drives an agent reply loop interactively from a terminal,
// against a configured set of stdio MCP extensions and a single model
// provider. Grounded on cmd/demo's runtime-assembly style, restructured as a
// cobra command so flags/subcommands follow the pack's spf13/cobra idiom
// instead of demo's hardcoded main().
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"goa.design/goa-ai/features/model/anthropic"
	"goa.design/goa-ai/features/model/openai"
	"goa.design/goa-ai/runtime/agent/agentcore"
	"goa.design/goa-ai/runtime/agent/extension"
	"goa.design/goa-ai/runtime/agent/model"
	"goa.design/goa-ai/runtime/agent/reply"
	"goa.design/goa-ai/runtime/agent/session"
)

type runFlags struct {
	provider   string
	modelName  string
	extensions []string // repeated "name=command arg1 arg2"
	maxTokens  int
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replctl",
		Short: "Drive an agent reply loop from a terminal",
	}
	cmd.AddCommand(newRunCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive session against one provider and extension set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.provider, "provider", "anthropic", "model provider: anthropic|openai")
	cmd.Flags().StringVar(&flags.modelName, "model", "", "model identifier override")
	cmd.Flags().StringArrayVar(&flags.extensions, "extension", nil,
		`stdio extension as "name=command arg1 arg2", repeatable`)
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", 4096, "default completion token cap")
	return cmd
}

func buildClient(flags *runFlags) (model.Client, error) {
	switch flags.provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("replctl: ANTHROPIC_API_KEY is required for --provider=anthropic")
		}
		modelName := flags.modelName
		if modelName == "" {
			modelName = "claude-3-5-sonnet-latest"
		}
		return anthropic.NewFromAPIKey(apiKey, modelName)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("replctl: OPENAI_API_KEY is required for --provider=openai")
		}
		modelName := flags.modelName
		if modelName == "" {
			modelName = "gpt-4o"
		}
		return openai.NewFromAPIKey(apiKey, modelName)
	default:
		return nil, fmt.Errorf("replctl: unknown provider %q", flags.provider)
	}
}

// parseExtension splits a "name=command arg1 arg2" flag value into a stdio
// extension.Config.
func parseExtension(raw string) (extension.Config, error) {
	name, rest, ok := strings.Cut(raw, "=")
	if !ok || name == "" || rest == "" {
		return extension.Config{}, fmt.Errorf("replctl: invalid --extension %q, want name=command args", raw)
	}
	fields := strings.Fields(rest)
	return extension.Config{
		Name:    name,
		Kind:    extension.KindStdio,
		Command: fields[0],
		Args:    fields[1:],
	}, nil
}

type stdoutSink struct{}

func (stdoutSink) Emit(ev reply.Event) {
	switch ev.Kind {
	case reply.EventMessage:
		if ev.Message == nil {
			return
		}
		if text, ok := ev.Message.LastText(); ok && text != "" {
			fmt.Printf("[%s] %s\n", ev.Message.Role, text)
		}
	case reply.EventHistoryReplaced:
		fmt.Println("[system] conversation compacted")
	case reply.EventModelChange:
		fmt.Println("[system] model changed mid-turn")
	}
}

func runInteractive(ctx context.Context, flags *runFlags) error {
	client, err := buildClient(flags)
	if err != nil {
		return err
	}

	a := agentcore.New(agentcore.Deps{
		Client:    client,
		ReplyOpts: reply.Options{MaxTokens: flags.maxTokens, MaxToolRounds: 50},
	})

	for _, raw := range flags.extensions {
		cfg, err := parseExtension(raw)
		if err != nil {
			return err
		}
		if _, err := a.Registry().Add(ctx, cfg); err != nil {
			return fmt.Errorf("replctl: add extension %q: %w", cfg.Name, err)
		}
	}

	handle := a.NewSession("repl", ".", session.KindUser)
	sink := stdoutSink{}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("replctl ready. Type a message and press enter; Ctrl-D to exit.")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := a.Reply(ctx, handle, line, sink); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}
