package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pairsync/internal/harness"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Timeout time.Duration
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <scenario.yaml>...",
		Short: "Run scripted sync scenarios and report their assertions",
		Long: `Run one or more scenario files against an in-process phone and watch.

Each scenario scripts local edits, sends, lifecycle and link changes, then
asserts on the final lists, states and notifications. The command exits 1 if
any assertion fails.

Example:
  pairsync check internal/harness/testdata/scenarios/*.yaml
  pairsync check --format json lifecycle.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", harness.DefaultTimeout, "time limit per scenario")

	return cmd
}

// scenarioReport is the outcome of one scenario file.
type scenarioReport struct {
	File   string   `json:"file"`
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Steps  int      `json:"steps"`
	Events int      `json:"events"`
	Errors []string `json:"errors,omitempty"`
}

// checkResult is the check command's output.
type checkResult struct {
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []scenarioReport `json:"scenarios"`
}

func (r checkResult) RenderText(w io.Writer) error {
	for _, s := range r.Scenarios {
		mark := "PASS"
		if !s.Pass {
			mark = "FAIL"
		}
		if _, err := fmt.Fprintf(w, "%s  %s (%d steps, %d events)\n", mark, s.Name, s.Steps, s.Events); err != nil {
			return err
		}
		for _, e := range s.Errors {
			if _, err := fmt.Fprintf(w, "      %s\n", e); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintf(w, "%d passed, %d failed\n", r.Passed, r.Failed)
	return err
}

func runCheck(ctx context.Context, opts *CheckOptions, paths []string, stdout, stderr io.Writer) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, stderr)
	out := &OutputFormatter{Format: opts.Format, Writer: stdout}

	var result checkResult
	for _, p := range paths {
		s, err := harness.LoadScenario(p)
		if err != nil {
			_ = out.Error(CodeConfig, err.Error(), map[string]string{"file": p})
			return WrapExitError(ExitCommandError, "invalid scenario", err)
		}

		run, err := harness.Run(ctx, s, harness.WithLogger(logger), harness.WithTimeout(opts.Timeout))
		if err != nil {
			_ = out.Error(CodeSync, err.Error(), map[string]string{"file": p, "scenario": s.Name})
			return WrapExitError(ExitFailure, "scenario did not run", err)
		}

		logger.Info("scenario finished", "scenario", s.Name, "pass", run.Pass)
		result.Scenarios = append(result.Scenarios, scenarioReport{
			File:   p,
			Name:   s.Name,
			Pass:   run.Pass,
			Steps:  len(s.Flow),
			Events: len(run.Trace),
			Errors: run.Errors,
		})
		if run.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := out.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, len(paths)))
	}
	return nil
}
