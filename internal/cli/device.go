package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/pairsync/internal/config"
	"github.com/roach88/pairsync/internal/coordinator"
	"github.com/roach88/pairsync/internal/linkstate"
	"github.com/roach88/pairsync/internal/record"
	"github.com/roach88/pairsync/internal/store"
	"github.com/roach88/pairsync/internal/transport"
)

// device is one side of the link: its store, session and coordinator.
type device struct {
	name    string
	store   *store.Store
	session transport.Session
	coord   *coordinator.Coordinator
	factory record.Factory
}

// newStore creates a device store whose Fetch installs the configured seed.
func newStore(cfg config.Config) *store.Store {
	seed := cfg.SeedTexts()
	return store.New(store.WithSeed(func() []record.Record {
		return record.Seed(record.Factory{}, seed)
	}))
}

// newDevice wires a coordinator around st and sess using cfg.
func newDevice(name string, st *store.Store, sess transport.Session, cfg config.Config, logger *slog.Logger) (*device, error) {
	mode, err := coordinator.ParseSendMode(cfg.Link.SendMode)
	if err != nil {
		return nil, err
	}
	factory := record.Factory{}
	coord := coordinator.New(st, sess,
		coordinator.WithName(name),
		coordinator.WithLogger(logger),
		coordinator.WithSendMode(mode),
		coordinator.WithReactivate(cfg.Link.Reactivate),
	)
	return &device{name: name, store: st, session: sess, coord: coord, factory: factory}, nil
}

// add appends records authored now.
func (d *device) add(texts ...string) {
	for _, t := range texts {
		d.store.Append(d.factory.NewNow(t))
	}
}

// awaitReady waits until the coordinator has seen activation and the peer is
// reachable.
func (d *device) awaitReady(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if d.session.IsReachable() && d.coord.Status().State == linkstate.Waiting {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: link not ready: %w", d.name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// outcome is how a send trigger ended.
type outcome struct {
	Status  linkstate.Status
	Skipped bool
	Err     error
}

// awaitOutcome reads notifications until the transfer started by the last
// Send succeeded, failed or was skipped.
func awaitOutcome(ctx context.Context, events <-chan coordinator.Notification) (outcome, error) {
	for {
		select {
		case <-ctx.Done():
			return outcome{}, ctx.Err()
		case n, ok := <-events:
			if !ok {
				return outcome{}, coordinator.ErrStopped
			}
			switch n.Kind {
			case coordinator.SendSkipped, coordinator.SendRejected:
				return outcome{Status: n.Status, Skipped: true}, nil
			case coordinator.SendFailed:
				return outcome{Status: n.Status, Err: n.Err}, nil
			case coordinator.StateChanged:
				if n.Status.State == linkstate.Succeeded {
					return outcome{Status: n.Status}, nil
				}
			}
		}
	}
}

// recordView is a record as shown to a user.
type recordView struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// deviceReport is a device's list and state as shown to a user.
type deviceReport struct {
	Name    string       `json:"name"`
	State   string       `json:"state"`
	Cause   string       `json:"cause,omitempty"`
	Records []recordView `json:"records"`
}

func (d *device) report(f record.Formatter) deviceReport {
	st := d.coord.Status()
	recs := d.store.Records()
	views := make([]recordView, len(recs))
	for i, r := range recs {
		views[i] = recordView{ID: r.ID.String(), Text: r.Text, CreatedAt: f.FormatTimestamp(r)}
	}
	return deviceReport{Name: d.name, State: st.State.String(), Cause: st.Cause, Records: views}
}

func (r deviceReport) RenderText(w io.Writer) error {
	label := r.State
	if r.Cause != "" {
		label += ": " + r.Cause
	}
	if _, err := fmt.Fprintf(w, "%s [%s]\n", r.Name, label); err != nil {
		return err
	}
	if len(r.Records) == 0 {
		_, err := fmt.Fprintln(w, "  (no records)")
		return err
	}
	for i, rec := range r.Records {
		if _, err := fmt.Fprintf(w, "  %d. %s  %s\n", i+1, rec.CreatedAt, rec.Text); err != nil {
			return err
		}
	}
	return nil
}
