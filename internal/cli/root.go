package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmynk/ledger/internal/config"
	"github.com/mmynk/ledger/internal/ledger"
	"github.com/mmynk/ledger/internal/metrics"
	"github.com/mmynk/ledger/internal/render"
	"github.com/mmynk/ledger/internal/storage"
	"github.com/mmynk/ledger/internal/storage/memory"
	"github.com/mmynk/ledger/internal/storage/sqlite"
	"github.com/mmynk/ledger/pkg/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// rootOptions carries persistent flags and the resolved config to subcommands.
type rootOptions struct {
	configDir   string
	logLevel    string
	metricsAddr string
	currency    string
	store       string

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Invoice and payment ledger",
		Long: "ledger keeps invoices and settles payments against them. Payments with " +
			"several transactions succeed or fail as a whole. State lives in memory " +
			"for the lifetime of the process unless the sqlite store is configured.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configDir, "config-dir", ".", "Directory containing "+config.FileName)
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the shell runs (e.g. :9100)")
	flags.StringVar(&opts.currency, "currency", "", "Currency symbol shown in tables")
	flags.StringVar(&opts.store, "store", "", "Storage backend: memory or sqlite")

	cmd.AddCommand(newShellCmd(opts))
	cmd.AddCommand(newReplayCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// resolve loads the config file, applies flag overrides and installs the
// logger on the command's stderr.
func (o *rootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configDir)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	if o.currency != "" {
		cfg.Currency = o.currency
	}
	if o.store != "" {
		cfg.Store = o.store
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	slog.SetDefault(slog.New(logging.NewHandler(cmd.ErrOrStderr(), logging.ParseLevel(cfg.LogLevel))))
	slog.Debug("Config resolved",
		"log_level", cfg.LogLevel,
		"metrics_addr", cfg.MetricsAddr,
		"currency", cfg.Currency,
		"store", cfg.Store,
	)
	return nil
}

// newService wires a ledger over the configured storage backend. The
// returned store must be closed by the caller.
func newService(cfg config.Config) (*ledger.Service, *metrics.LedgerMetrics, storage.Store, error) {
	var store storage.Store
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.New(cfg.SQLiteDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		store = s
	default:
		store = memory.New()
	}

	m := metrics.New()
	return ledger.NewService(store, m), m, store, nil
}

func newRenderer(opts *rootOptions) *render.Renderer {
	return render.New(opts.cfg.Currency)
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, which ends the interactive shell cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
