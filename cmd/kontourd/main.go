// Command kontourd is the Kontour ledger node tooling: key generation,
// transaction submission, mining, chain inspection and the geometric
// verification oracle.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kontourlabs/kontourd/chain"
	"github.com/kontourlabs/kontourd/config"
	"github.com/kontourlabs/kontourd/contour"
	"github.com/kontourlabs/kontourd/metrics"
	"github.com/kontourlabs/kontourd/store"
)

var (
	cfgFile  string
	logLevel string

	cfg config.Config
	log *zap.Logger
	met *metrics.Metrics
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "kontourd",
		Short:         "Kontour proof-of-work ledger with post-quantum and geometric attestation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			return initLogger()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default kontourd.yaml in the working directory)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "zap log level")
	root.PersistentFlags().String("data-dir", "", "chain database directory (empty keeps the chain in memory)")
	root.PersistentFlags().String("oracle-endpoint", "", "geometric verification oracle URL")

	root.AddCommand(
		keygenCommand(),
		submitCommand(),
		mineCommand(),
		balanceCommand(),
		validateCommand(),
		statsCommand(),
		oracleCommand(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) error {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("kontourd")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("KONTOUR")
	v.AutomaticEnv()
	_ = v.BindPFlag("data_dir", cmd.Flags().Lookup("data-dir"))
	_ = v.BindPFlag("oracle_endpoint", cmd.Flags().Lookup("oracle-endpoint"))

	cfg = config.Default()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		config.DurationMillisHook(),
	))); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

func initLogger() error {
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	log, err = zcfg.Build()
	if err != nil {
		return err
	}
	met = metrics.New(prometheus.DefaultRegisterer)
	return nil
}

func geometryParams() contour.Params {
	return contour.Params{
		Dimensions:    cfg.Dimensions,
		Precision:     cfg.Precision,
		Tolerance:     cfg.Tolerance,
		MinComplexity: cfg.MinComplexity,
	}
}

// openLedger wires the verifier, optional store and metrics into a ledger.
// The returned closer is nil when no store is open.
func openLedger() (*chain.Ledger, func() error, error) {
	verifier := contour.NewVerifier(geometryParams(), cfg.OracleEndpoint,
		contour.WithLogger(log.Named("contour")),
		contour.WithMetrics(met),
		contour.WithHTTPClient(&http.Client{Timeout: cfg.OracleTimeout}),
	)

	opts := []chain.Option{
		chain.WithLogger(log.Named("chain")),
		chain.WithMetrics(met),
	}
	var closer func() error
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := store.Open(filepath.Join(cfg.DataDir, "kontour.db"))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, chain.WithStore(db))
		closer = db.Close
	}

	ledger, err := chain.New(cfg, verifier, opts...)
	if err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, nil, err
	}
	return ledger, closer, nil
}
