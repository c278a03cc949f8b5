// Package cmd implements the batchidx commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/batchidx/internal/config"
	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/logging"
	"github.com/Aman-CERP/batchidx/internal/profiling"
	"github.com/Aman-CERP/batchidx/internal/provider"
	"github.com/Aman-CERP/batchidx/internal/store"
	"github.com/Aman-CERP/batchidx/pkg/version"
)

// state is shared by the commands of one root command.
type state struct {
	projectDir string
	dataDir    string
	debug      bool
	profile    profiling.Options

	cfg            *config.Config
	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	st := &state{}

	cmd := &cobra.Command{
		Use:   "batchidx",
		Short: "Batch-inserter property index",
		Long: `batchidx builds and queries property indexes over node and relationship IDs.

Writes are buffered and become visible atomically on flush. Reads see the
last flushed state. Indexes live in the data directory, one per
kind/name, on a memory, sqlite, bleve or badger backend.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: st.start,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return st.stop()
		},
	}
	cmd.SetVersionTemplate("batchidx version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&st.projectDir, "dir", "C", ".", "Project directory holding .batchidx.yaml")
	cmd.PersistentFlags().StringVar(&st.dataDir, "data-dir", "", "Index data directory (overrides config)")
	cmd.PersistentFlags().BoolVar(&st.debug, "debug", false, "Write debug logs to <data-dir>/logs/")
	cmd.PersistentFlags().StringVar(&st.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&st.profile.Heap, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&st.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newLoadCmd(st))
	cmd.AddCommand(newGetCmd(st))
	cmd.AddCommand(newQueryCmd(st))
	cmd.AddCommand(newInfoCmd(st))
	cmd.AddCommand(newConfigCmd(st))
	cmd.AddCommand(newDoctorCmd(st))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failing command's error.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, amerrors.FormatForCLI(err))
	}
	return err
}

// start loads configuration, then sets up logging and profiling.
func (st *state) start(cmd *cobra.Command, _ []string) error {
	dir, err := filepath.Abs(st.projectDir)
	if err != nil {
		return amerrors.ConfigError("invalid project directory", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return amerrors.ConfigError("failed to load configuration", err)
	}
	if st.dataDir != "" {
		cfg.DataDir, err = filepath.Abs(st.dataDir)
		if err != nil {
			return amerrors.ConfigError("invalid data directory", err)
		}
	}
	st.cfg = cfg

	logCfg := logging.Config{
		Level:     "warn",
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if logCfg.FilePath != "" {
		logCfg.Level = cfg.Logging.Level
	}
	if st.debug {
		logCfg = logging.DebugConfig(cfg.DataDir)
	}
	cleanup, err := logging.Install(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	st.loggingCleanup = cleanup
	slog.Debug("cli_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Short()),
		slog.String("data_dir", cfg.DataDir))

	if st.profile.Enabled() {
		st.profiler, err = profiling.Start(st.profile)
		if err != nil {
			return err
		}
	}
	return nil
}

func (st *state) stop() error {
	var errs []error
	if st.profiler != nil {
		errs = append(errs, st.profiler.Stop())
		st.profiler = nil
	}
	if st.loggingCleanup != nil {
		st.loggingCleanup()
		st.loggingCleanup = nil
	}
	return errors.Join(errs...)
}

// providerOptions maps the loaded configuration to provider options.
// A non-empty backend overrides the configured default for new indexes.
func (st *state) providerOptions(backend string) (provider.Options, error) {
	cfg := st.cfg
	opts := provider.DefaultOptions()
	opts.DataDir = cfg.DataDir
	opts.Backend = cfg.Index.Backend
	if backend != "" {
		if _, err := store.ParseBackendType(backend); err != nil {
			return opts, amerrors.New(amerrors.ErrCodeInvalidInput, err.Error(), nil)
		}
		opts.Backend = backend
	}
	opts.CacheSize = cfg.Index.CacheSize
	opts.Store = store.Options{
		PageSize:           cfg.Index.PageSize,
		SQLiteCacheMB:      cfg.SQLite.CacheMB,
		BadgerSyncWrites:   cfg.Badger.SyncWrites,
		BadgerMemTableSize: int64(cfg.Badger.MemTableMB) << 20,
	}
	opts.Retry.MaxRetries = cfg.Flush.MaxRetries
	opts.Retry.InitialDelay, opts.Retry.MaxDelay = cfg.FlushDelays()
	return opts, nil
}

// openProvider opens the data directory, creating it when missing.
func (st *state) openProvider(backend string) (*provider.Provider, error) {
	opts, err := st.providerOptions(backend)
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, amerrors.ConfigError("failed to create data directory", err)
		}
	}
	return provider.Open(opts)
}

// withProvider runs fn against an open provider and shuts it down afterwards.
func (st *state) withProvider(ctx context.Context, backend string, fn func(*provider.Provider) error) error {
	p, err := st.openProvider(backend)
	if err != nil {
		return err
	}
	runErr := fn(p)
	// Shut down even if ctx was cancelled so buffered writes get their flush.
	shutdownErr := p.Shutdown(context.WithoutCancel(ctx))
	return errors.Join(runErr, shutdownErr)
}

// indexFlags are the flags selecting one index.
type indexFlags struct {
	name string
	kind string
}

func (f *indexFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "index", "i", "", "Index name (required)")
	cmd.Flags().StringVarP(&f.kind, "kind", "k", string(provider.KindNode), "Index kind: node or relationship")
	_ = cmd.MarkFlagRequired("index")
}

func (f *indexFlags) ref() (provider.Ref, error) {
	kind, err := provider.ParseKind(f.kind)
	if err != nil {
		return provider.Ref{}, amerrors.New(amerrors.ErrCodeInvalidInput, err.Error(), nil)
	}
	return provider.Ref{Kind: kind, Name: f.name}, nil
}
