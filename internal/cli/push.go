package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pairsync/internal/transport"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	URL     string
	Add     []string
	Empty   bool
	Timeout time.Duration
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Send this device's list to a responder once",
		Long: `Dial a responder started with "pairsync serve", send the seed list plus any
--add records, and wait for the responder's acknowledgement.

Exit code 1 means the sync failed or was skipped; 2 means the link could
not be opened.

Example:
  pairsync push --add "gate B12"
  pairsync push --url ws://192.168.1.20:8787/link --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "responder websocket URL (defaults to link.url)")
	cmd.Flags().StringArrayVar(&opts.Add, "add", nil, "append a record before sending (repeatable)")
	cmd.Flags().BoolVar(&opts.Empty, "empty", false, "send an empty list instead of the seed")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "overall deadline")

	return cmd
}

// pushResult is the push command's output.
type pushResult struct {
	Outcome string       `json:"outcome"`
	Cause   string       `json:"cause,omitempty"`
	Device  deviceReport `json:"device"`
}

func (r pushResult) RenderText(w io.Writer) error {
	if err := r.Device.RenderText(w); err != nil {
		return err
	}
	line := "outcome: " + r.Outcome
	if r.Cause != "" {
		line += " (" + r.Cause + ")"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func runPush(parent context.Context, opts *PushOptions, stdout, stderr io.Writer) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, stderr)
	out := &OutputFormatter{Format: opts.Format, Writer: stdout}

	url := opts.URL
	if url == "" {
		url = cfg.Link.URL
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	sess, err := transport.DialWS(ctx, url, transport.WSOptions{
		ReplyTimeout: cfg.Link.ReplyTimeout,
		Logger:       logger,
	})
	if err != nil {
		_ = out.Error(CodeLink, "could not reach responder", map[string]string{"url": url, "err": err.Error()})
		return WrapExitError(ExitCommandError, "could not reach responder", err)
	}
	defer sess.Close()

	dev, err := newDevice(cfg.Device.Name, newStore(cfg), sess, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up device", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer func() {
		stop()
		<-dev.coord.Done()
	}()
	go func() { _ = dev.coord.Run(runCtx) }()

	events, unsubscribe := dev.coord.Subscribe(32)
	defer unsubscribe()

	if err := dev.coord.Activate(); err != nil {
		return WrapExitError(ExitCommandError, "failed to activate link", err)
	}
	if err := dev.awaitReady(ctx); err != nil {
		return WrapExitError(ExitCommandError, "link did not come up", err)
	}

	if !opts.Empty {
		dev.store.Fetch()
	}
	dev.add(opts.Add...)

	if err := dev.coord.Send(); err != nil {
		return WrapExitError(ExitFailure, "send", err)
	}
	oc, err := awaitOutcome(ctx, events)
	if err != nil {
		return WrapExitError(ExitFailure, "sync did not finish", err)
	}

	result := pushResult{Outcome: "succeeded", Device: dev.report(cfg.Formatter())}
	switch {
	case oc.Skipped:
		result.Outcome, result.Cause = "skipped", "peer not reachable"
	case oc.Err != nil:
		result.Outcome, result.Cause = "failed", oc.Status.Cause
	}
	if err := out.Success(result); err != nil {
		return err
	}
	if result.Outcome != "succeeded" {
		return NewExitError(ExitFailure, "sync "+result.Outcome)
	}
	return nil
}
