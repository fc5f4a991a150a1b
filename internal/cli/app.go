package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/finishline/internal/config"
	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/export"
	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/store"
)

// app is the process wiring shared by every command: configuration,
// logger, store, and engine.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
	out    *OutputFormatter
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	return cfg, cfg.Validate()
}

// openApp loads configuration and opens the database (creating it if it
// doesn't exist). The engine is built separately by startEngine so
// callers can wire notifiers and metrics that need the logger. Callers
// must call close.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger := cfg.Logger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		out: &OutputFormatter{
			Format:  opts.Format,
			Writer:  cmd.OutOrStdout(),
			Verbose: opts.Verbose,
		},
	}, nil
}

// startEngine builds the engine from the configuration. extra options are
// applied after the configured ones.
func (a *app) startEngine(extra ...engine.Option) error {
	scope, err := engine.ParseGateScope(a.cfg.Lock.Scope)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid lock scope", err)
	}
	col, err := export.ParsePositionColumn(a.cfg.Export.PositionColumn)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid position column", err)
	}

	base := []engine.Option{
		engine.WithGateScope(scope),
		engine.WithOutputDir(a.cfg.OutputDir),
		engine.WithPositionColumn(col),
		engine.WithLogger(a.logger),
	}
	a.engine = engine.New(a.store, append(base, extra...)...)
	return nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// withApp runs fn with an opened app and closes it afterwards.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.startEngine(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a)
}

// resolveContext finds a context by ID or name. An empty reference means
// the active context.
func (a *app) resolveContext(ctx context.Context, ref string) (model.Context, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		c, ok, err := a.engine.ActiveContext(ctx)
		if err != nil {
			return model.Context{}, err
		}
		if !ok {
			return model.Context{}, engine.NewParameterError("no active context: pass --context or activate one")
		}
		return c, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		c, err := a.engine.Context(ctx, id)
		if err == nil || !engine.IsNotFound(err) {
			return c, err
		}
	}
	return a.engine.ContextByName(ctx, ref)
}

// parseID parses a positive row ID argument.
func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s id %q", kind, s))
	}
	return id, nil
}

// parseTime accepts seconds or [[hh:]mm:]ss[.dd].
func parseTime(s string) (float64, error) {
	if secs, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return secs, nil
	}
	secs, err := model.ParseElapsed(s)
	if err != nil {
		return 0, NewExitError(ExitCommandError, err.Error())
	}
	return secs, nil
}

// isExit reports whether err already carries an exit code.
func isExit(err error) bool {
	var ee *ExitError
	return errors.As(err, &ee)
}

// fail converts err to an ExitError unless it already carries one.
func (a *app) fail(message string, err error) error {
	if isExit(err) {
		return err
	}
	return a.out.OperationError(message, err)
}
