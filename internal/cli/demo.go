package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pairsync/internal/coordinator"
	"github.com/roach88/pairsync/internal/linkstate"
	"github.com/roach88/pairsync/internal/transport"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Add         []string
	Unreachable bool
	Corrupt     bool
	Timeout     time.Duration
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Sync a phone and a watch over an in-process link",
		Long: `Run a phone and a watch in one process, linked in memory.

The phone fetches its seed list, appends any --add records and sends the
whole list. The watch replaces its list with what it received. Both lists and
connection states are printed.

Example:
  pairsync demo --add "pick up keys"
  pairsync demo --unreachable
  pairsync demo --corrupt --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringArrayVar(&opts.Add, "add", nil, "append a record to the phone list before sending (repeatable)")
	cmd.Flags().BoolVar(&opts.Unreachable, "unreachable", false, "drop the link before sending")
	cmd.Flags().BoolVar(&opts.Corrupt, "corrupt", false, "send a corrupt payload instead of the list")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "how long to wait for the sync")

	return cmd
}

// demoResult is the demo command's output.
type demoResult struct {
	Outcome string         `json:"outcome"`
	Cause   string         `json:"cause,omitempty"`
	Devices []deviceReport `json:"devices"`
}

func (r demoResult) RenderText(w io.Writer) error {
	for _, d := range r.Devices {
		if err := d.RenderText(w); err != nil {
			return err
		}
	}
	line := "outcome: " + r.Outcome
	if r.Cause != "" {
		line += " (" + r.Cause + ")"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func runDemo(parent context.Context, opts *DemoOptions, stdout, stderr io.Writer) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, stderr)
	out := &OutputFormatter{Format: opts.Format, Writer: stdout}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	link, phoneSess, watchSess := transport.NewMemPair("phone", "watch")
	defer phoneSess.Close()
	defer watchSess.Close()

	phone, err := newDevice("phone", newStore(cfg), phoneSess, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up phone", err)
	}
	watch, err := newDevice("watch", newStore(cfg), watchSess, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up watch", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer func() {
		stop()
		<-phone.coord.Done()
		<-watch.coord.Done()
	}()
	go func() { _ = phone.coord.Run(runCtx) }()
	go func() { _ = watch.coord.Run(runCtx) }()

	phoneEvents, unsubPhone := phone.coord.Subscribe(32)
	defer unsubPhone()
	watchEvents, unsubWatch := watch.coord.Subscribe(32)
	defer unsubWatch()

	if err := phone.coord.Activate(); err != nil {
		return WrapExitError(ExitCommandError, "failed to activate phone", err)
	}
	if err := watch.coord.Activate(); err != nil {
		return WrapExitError(ExitCommandError, "failed to activate watch", err)
	}
	if err := phone.awaitReady(ctx); err != nil {
		return WrapExitError(ExitCommandError, "link did not come up", err)
	}

	phone.store.Fetch()
	phone.add(opts.Add...)
	logger.Debug("phone list ready", "records", phone.store.Len())

	if opts.Unreachable {
		link.SetReachable(false)
	}

	result := demoResult{}
	if opts.Corrupt {
		result, err = demoCorrupt(ctx, phoneSess, watchEvents)
	} else {
		result, err = demoSend(ctx, phone, phoneEvents, watchEvents, opts.Unreachable)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "sync did not finish", err)
	}

	f := cfg.Formatter()
	result.Devices = []deviceReport{phone.report(f), watch.report(f)}
	if err := out.Success(result); err != nil {
		return err
	}
	if result.Outcome != "succeeded" {
		return NewExitError(ExitFailure, "sync "+result.Outcome)
	}
	return nil
}

func demoSend(ctx context.Context, phone *device, phoneEvents, watchEvents <-chan coordinator.Notification, unreachable bool) (demoResult, error) {
	if unreachable {
		// Let the phone observe the loss before it tries.
		if err := waitState(ctx, phoneEvents, linkstate.Failed); err != nil {
			return demoResult{}, err
		}
	}
	if err := phone.coord.Send(); err != nil {
		return demoResult{}, err
	}
	oc, err := awaitOutcome(ctx, phoneEvents)
	if err != nil {
		return demoResult{}, err
	}
	switch {
	case oc.Skipped:
		return demoResult{Outcome: "skipped", Cause: "peer not reachable"}, nil
	case oc.Err != nil:
		return demoResult{Outcome: "failed", Cause: oc.Status.Cause}, nil
	}
	// The phone's ack arrives after the watch applied the list.
	if err := waitState(ctx, watchEvents, linkstate.Succeeded); err != nil {
		return demoResult{}, err
	}
	return demoResult{Outcome: "succeeded"}, nil
}

func demoCorrupt(ctx context.Context, phoneSess transport.Session, watchEvents <-chan coordinator.Notification) (demoResult, error) {
	failed := make(chan error, 1)
	phoneSess.SendWithReply(ctx, []byte(`[{"id":"not-a-uuid"`), func(_ []byte, err error) {
		if err != nil {
			failed <- err
		}
	})
	for {
		select {
		case <-ctx.Done():
			return demoResult{}, ctx.Err()
		case err := <-failed:
			return demoResult{Outcome: "failed", Cause: err.Error()}, nil
		case n, ok := <-watchEvents:
			if !ok {
				return demoResult{}, coordinator.ErrStopped
			}
			if n.Kind == coordinator.ReceiveFailed {
				return demoResult{Outcome: "rejected", Cause: n.Status.Cause}, nil
			}
		}
	}
}

// waitState reads notifications until the state reaches want.
func waitState(ctx context.Context, events <-chan coordinator.Notification, want linkstate.State) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-events:
			if !ok {
				return coordinator.ErrStopped
			}
			if n.Status.State == want {
				return nil
			}
		}
	}
}
