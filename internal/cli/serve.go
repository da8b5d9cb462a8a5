package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/roach88/pairsync/internal/config"
	"github.com/roach88/pairsync/internal/linkstate"
	"github.com/roach88/pairsync/internal/record"
	"github.com/roach88/pairsync/internal/store"
	"github.com/roach88/pairsync/internal/transport"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	Name   string
	Fetch  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the responder side over websocket",
		Long: `Run a responder device. An initiator connects to /link and pushes its list;
each received list replaces the responder's.

Routes:
  GET  /healthz   liveness
  GET  /records   the responder's list
  POST /records   append {"text": "..."} locally
  GET  /state     connection state of the current link
  POST /send      push the responder's list back over the current link
  GET  /link      websocket endpoint for the initiator

Example:
  pairsync serve --listen 127.0.0.1:8787
  pairsync serve --config watch.yaml --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (defaults to link.listen)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "device name (defaults to device.name for a responder, else \"watch\")")
	cmd.Flags().BoolVar(&opts.Fetch, "fetch", false, "start with the seed list instead of an empty one")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())

	listen := opts.Listen
	if listen == "" {
		listen = cfg.Link.Listen
	}
	name := opts.Name
	if name == "" {
		name = "watch"
		if cfg.Device.Role == config.RoleResponder {
			name = cfg.Device.Name
		}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	st := newStore(cfg)
	if opts.Fetch {
		st.Fetch()
	}
	r := newResponder(ctx, name, st, cfg, logger)
	defer r.Close()

	srv := &http.Server{Addr: listen, Handler: r.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info("responder listening", "addr", listen, "device", name)
	fmt.Fprintf(cmd.OutOrStdout(), "Responder %q listening on ws://%s/link\n", name, listen)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("responder stopped")
	return nil
}

// responder owns one store and at most one live link to an initiator. A new
// connection on /link replaces the previous one.
type responder struct {
	ctx      context.Context
	name     string
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	factory  record.Factory
	upgrader websocket.Upgrader

	mu      sync.Mutex
	current *device
	stop    context.CancelFunc
}

func newResponder(ctx context.Context, name string, st *store.Store, cfg config.Config, logger *slog.Logger) *responder {
	return &responder{
		ctx:    ctx,
		name:   name,
		cfg:    cfg,
		logger: logger,
		store:  st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the gin engine serving the responder routes.
func (r *responder) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), r.requestLogger())

	engine.GET("/healthz", r.handleHealthz)
	engine.GET("/records", r.handleRecords)
	engine.POST("/records", r.handleAddRecord)
	engine.GET("/state", r.handleState)
	engine.POST("/send", r.handleSend)
	engine.GET("/link", r.handleLink)
	return engine
}

func (r *responder) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}

func (r *responder) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "device": r.name})
}

func (r *responder) handleRecords(c *gin.Context) {
	f := r.cfg.Formatter()
	recs := r.store.Records()
	views := make([]recordView, len(recs))
	for i, rec := range recs {
		views[i] = recordView{ID: rec.ID.String(), Text: rec.Text, CreatedAt: f.FormatTimestamp(rec)}
	}
	c.JSON(http.StatusOK, views)
}

type addRecordRequest struct {
	Text string `json:"text"`
}

func (r *responder) handleAddRecord(c *gin.Context) {
	var req addRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text required"})
		return
	}
	rec := r.factory.NewNow(req.Text)
	r.store.Append(rec)
	c.JSON(http.StatusCreated, recordView{
		ID:        rec.ID.String(),
		Text:      rec.Text,
		CreatedAt: r.cfg.Formatter().FormatTimestamp(rec),
	})
}

type stateResponse struct {
	Linked bool             `json:"linked"`
	Status linkstate.Status `json:"status"`
	Label  string           `json:"label"`
}

func (r *responder) handleState(c *gin.Context) {
	dev := r.device()
	resp := stateResponse{Status: linkstate.Status{State: linkstate.Initial}}
	if dev != nil {
		resp.Linked = dev.session.IsReachable()
		resp.Status = dev.coord.Status()
	}
	resp.Label = resp.Status.State.Label()
	c.JSON(http.StatusOK, resp)
}

func (r *responder) handleSend(c *gin.Context) {
	dev := r.device()
	if dev == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no initiator linked"})
		return
	}
	if err := dev.coord.Send(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (r *responder) handleLink(c *gin.Context) {
	sess, err := transport.AcceptWS(c.Writer, c.Request, &r.upgrader, transport.WSOptions{
		ReplyTimeout: r.cfg.Link.ReplyTimeout,
		Logger:       r.logger,
	})
	if err != nil {
		// The upgrader has already written the HTTP error.
		r.logger.Warn("link upgrade failed", "err", err)
		return
	}
	if err := r.attach(sess); err != nil {
		r.logger.Error("link attach failed", "err", err)
		_ = sess.Close()
	}
}

// attach replaces the current link with sess.
func (r *responder) attach(sess transport.Session) error {
	dev, err := newDevice(r.name, r.store, sess, r.cfg, r.logger)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.detachLocked()
	ctx, cancel := context.WithCancel(r.ctx)
	r.current, r.stop = dev, cancel
	r.mu.Unlock()

	go func() { _ = dev.coord.Run(ctx) }()
	r.logger.Info("initiator linked", "device", r.name)
	return dev.coord.Activate()
}

func (r *responder) detachLocked() {
	if r.current == nil {
		return
	}
	r.stop()
	_ = r.current.session.Close()
	r.current, r.stop = nil, nil
}

func (r *responder) device() *device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Close drops the current link.
func (r *responder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked()
}
