package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	dbm "github.com/cometbft/cometbft-db"
	abciserver "github.com/cometbft/cometbft/abci/server"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/NethermindEth/agent-protocol/api"
	"github.com/NethermindEth/agent-protocol/communication"
	"github.com/NethermindEth/agent-protocol/config"
	"github.com/NethermindEth/agent-protocol/consensus/abci"
	"github.com/NethermindEth/agent-protocol/metrics"
	"github.com/NethermindEth/agent-protocol/store"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "agentd",
		Short:         "Agent escrow protocol node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	start := &cobra.Command{
		Use:   "start",
		Short: "Run the ABCI application and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("log-level"); v != "" {
				cfg.LogLevel = v
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	start.Flags().String("log-level", "", "override AGENT_LOG_LEVEL (debug, info, error, none)")

	root.AddCommand(start, &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	})
	return root
}

func newLogger(level string) (log.Logger, error) {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	opt, err := log.AllowLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	return log.NewFilter(logger, opt), nil
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	db, err := dbm.NewDB("application", dbm.BackendType(cfg.DBBackend), cfg.DataDir())
	if err != nil {
		return errors.Wrapf(err, "open %s database in %s", cfg.DBBackend, cfg.DataDir())
	}
	st, err := store.New(db, logger.With("module", "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := metrics.New(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	hub := communication.NewHub(cfg.EventBuffer, logger.With("module", "hub"))
	notifiers := communication.Multi{hub, m}

	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL, nats.Name("agentd"))
		if err != nil {
			return errors.Wrapf(err, "connect to nats at %s", cfg.NATSURL)
		}
		defer conn.Close()
		notifiers = append(notifiers, communication.NewNATSPublisher(conn, cfg.NATSSubjectPrefix))
		logger.Info("publishing notifications to nats", "url", cfg.NATSURL, "prefix", cfg.NATSSubjectPrefix)
	}

	app, err := abci.NewApplication(cfg.ChainID, st,
		abci.WithLogger(logger),
		abci.WithNotifier(notifiers),
		abci.WithTxObserver(m),
	)
	if err != nil {
		return err
	}

	srv, err := abciserver.NewServer(cfg.ABCIAddress, cfg.ABCITransport, app)
	if err != nil {
		return errors.Wrap(err, "create abci server")
	}
	srv.SetLogger(logger.With("module", "abci-server"))
	if err := srv.Start(); err != nil {
		return errors.Wrapf(err, "start abci server on %s", cfg.ABCIAddress)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			logger.Error("stopping abci server", "err", err)
		}
	}()
	logger.Info("abci server started", "addr", cfg.ABCIAddress, "transport", cfg.ABCITransport, "chain_id", cfg.ChainID)

	return api.NewServer(app, hub, prometheus.DefaultGatherer, logger).Serve(ctx, cfg.APIAddress)
}
