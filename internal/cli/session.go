package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/spf13/cobra"

	"github.com/Azure/azure-cli-sub020/internal/arm"
	"github.com/Azure/azure-cli-sub020/internal/config"
	"github.com/Azure/azure-cli-sub020/internal/engine"
	"github.com/Azure/azure-cli-sub020/internal/ir"
	"github.com/Azure/azure-cli-sub020/internal/store"
)

// journalMode selects how a command treats the operation journal.
type journalMode int

const (
	journalOptional journalMode = iota // open if possible, continue without
	journalRequired                    // fail the command if it cannot be opened
)

// session is the per-invocation wiring shared by commands: configuration,
// logger, resource client and journal.
type session struct {
	opts   *RootOptions
	cfg    config.Config
	logger *slog.Logger
	client *arm.Client
	store  *store.Store // nil when the journal is unavailable
	ids    engine.IDGenerator
	clock  engine.Clock
	out    *OutputFormatter
}

// newSession loads configuration and builds the client and journal.
func newSession(cmd *cobra.Command, opts *RootOptions, mode journalMode) (*session, error) {
	logger := opts.logger(cmd.ErrOrStderr())

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	cred, err := newCredential(opts, cfg.Auth)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to create credential", err)
	}

	// azcore treats zero as "use the default"; negative disables retries.
	retries := int32(cfg.Wait.MaxRetries)
	if retries == 0 {
		retries = -1
	}
	client, err := arm.NewClient(arm.Options{
		Endpoint:   cfg.Endpoint,
		APIVersion: cfg.APIVersion,
		Credential: cred,
		MaxRetries: retries,
		Transport:  opts.Transport,
		Logger:     logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid endpoint", err)
	}

	s := &session{
		opts:   opts,
		cfg:    cfg,
		logger: logger,
		client: client,
		ids:    opts.IDs,
		clock:  opts.Clock,
		out:    opts.formatter(cmd),
	}
	if s.ids == nil {
		s.ids = engine.UUIDv7Generator{}
	}
	if s.clock == nil {
		s.clock = engine.SystemClock{}
	}

	st, err := openJournal(cfg)
	if err != nil {
		if mode == journalRequired {
			return nil, WrapExitError(ExitFailure, "failed to open operation journal", err)
		}
		logger.Warn("operation journal unavailable", "error", err)
	}
	s.store = st

	return s, nil
}

// Close releases the journal.
func (s *session) Close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing journal", "error", err)
	}
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	path := opts.Config
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}
	if opts.APIVersion != "" {
		cfg.APIVersion = opts.APIVersion
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// newCredential selects the token credential for the configured auth mode.
func newCredential(opts *RootOptions, mode config.AuthMode) (azcore.TokenCredential, error) {
	if opts.Credential != nil {
		return opts.Credential, nil
	}
	switch mode {
	case config.AuthNone:
		return nil, nil
	case config.AuthCLI:
		return azidentity.NewAzureCLICredential(nil)
	default:
		return azidentity.NewDefaultAzureCredential(nil)
	}
}

func openJournal(cfg config.Config) (*store.Store, error) {
	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

// signalContext returns a context canceled by SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan) // Prevent signal handler leak
		select {
		case sig := <-sigChan:
			logger.Warn("received signal, canceling wait", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// recordOperation journals op; failures are logged, not fatal.
func (s *session) recordOperation(ctx context.Context, op ir.Operation) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordOperation(ctx, op); err != nil {
		s.logger.Warn("failed to journal operation", "operation_id", op.ID, "error", err)
	}
}

// newWaiter builds a Waiter with the configured options adjusted by wf.
func (s *session) newWaiter(wf *waitFlags) (*engine.Waiter, error) {
	opts, err := s.cfg.EngineOptions()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if wf != nil {
		opts = wf.apply(opts)
	}

	waiterOpts := []engine.WaiterOption{
		engine.WithClock(s.clock),
		engine.WithLogger(s.logger),
		engine.WithIDGenerator(s.ids),
	}
	if s.store != nil {
		waiterOpts = append(waiterOpts, engine.WithRecorder(s.store))
	}
	return engine.NewWaiter(s.client, opts, waiterOpts...), nil
}

// wait runs one wait. When opID is set the wait is attached to that
// journaled operation.
func (s *session) wait(ctx context.Context, h ir.Handle, cond ir.Condition, wf *waitFlags, opID string) (ir.Outcome, error) {
	w, err := s.newWaiter(wf)
	if err != nil {
		return ir.Outcome{}, err
	}
	out := w.Wait(ctx, h, cond)

	if opID != "" && s.store != nil {
		if err := s.store.AttachWait(context.WithoutCancel(ctx), opID, out.WaitID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to attach wait to operation", "operation_id", opID, "wait_id", out.WaitID, "error", err)
		}
	}
	return out, nil
}

// waitAll waits on every target concurrently and returns the outcomes in
// target order.
func (s *session) waitAll(ctx context.Context, targets []engine.Target, wf *waitFlags) ([]ir.Outcome, error) {
	w, err := s.newWaiter(wf)
	if err != nil {
		return nil, err
	}
	return w.WaitAll(ctx, targets), nil
}

// finishWait prints the snapshot of a satisfied wait and converts any
// other outcome into an ExitError carrying the one-line summary.
func (s *session) finishWait(out ir.Outcome, printSnapshot bool) error {
	if !out.Satisfied() {
		return NewExitError(out.ExitCode(), out.Summary())
	}
	if printSnapshot && !out.Snapshot.IsEmpty() {
		return s.out.Print(out.Snapshot)
	}
	return nil
}

// finishWaitAll prints the snapshots of a fully satisfied batch as a list.
// Otherwise the error joins the summaries of the unsatisfied waits and
// carries the exit code of the worst outcome.
func (s *session) finishWaitAll(outcomes []ir.Outcome) error {
	if !engine.AllSatisfied(outcomes) {
		var summaries []string
		for _, o := range outcomes {
			if !o.Satisfied() {
				summaries = append(summaries, o.Summary())
			}
		}
		return NewExitError(engine.BatchExitCode(outcomes), strings.Join(summaries, "; "))
	}

	docs := make([]any, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Snapshot.IsEmpty() {
			docs = append(docs, o.Snapshot.Document())
		}
	}
	if len(docs) == 0 {
		return nil
	}
	return s.out.Print(docs)
}
