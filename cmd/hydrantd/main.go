package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Liqwid-Labs/hydrant/pkg/admin"
	"github.com/Liqwid-Labs/hydrant/pkg/chain"
	"github.com/Liqwid-Labs/hydrant/pkg/indexer"
	"github.com/Liqwid-Labs/hydrant/pkg/kv"
	"github.com/Liqwid-Labs/hydrant/pkg/log"
)

const shutdownTimeout = 10 * time.Second

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hydrantd",
	Short:   "hydrant - rollback-safe chain-indexing engine",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hydrantd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	runCmd.Flags().String("db-path", "./data/hydrant.db", "Path to the chain database file")
	runCmd.Flags().Int("max-rollback-blocks", 2160, "Number of blocks to retain for rollback safety")
	runCmd.Flags().String("metrics-addr", ":9090", "Address to serve /metrics, /healthz, /tip and /snapshot on")
	runCmd.Flags().String("snapshot-path", "", "Path POST /snapshot writes to; empty disables the endpoint")

	snapshotCmd.Flags().String("db-path", "./data/hydrant.db", "Path to the chain database file")
	snapshotCmd.Flags().Bool("overwrite", false, "Overwrite an existing snapshot file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

// runCmd opens the chain database, registers indexers, serves the admin
// HTTP surface, and blocks until interrupted. It does not itself dial a
// remote node: wiring a chainsync.ChainSyncSession/BlockFetchSession
// implementation is left to a caller that embeds this engine against a
// concrete peer client, since the wire protocol is outside this module's
// scope.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the chain database and serve the admin HTTP surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db-path")
		maxRollback, _ := cmd.Flags().GetInt("max-rollback-blocks")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		snapshotPath, _ := cmd.Flags().GetString("snapshot-path")

		env, err := kv.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer env.Close()

		utxo, err := indexer.NewUtxoIndexerBuilder("utxo").Build(env)
		if err != nil {
			return fmt.Errorf("building utxo indexer: %w", err)
		}

		db, err := chain.New(env, maxRollback, indexer.List{utxo})
		if err != nil {
			return fmt.Errorf("opening chain database: %w", err)
		}

		srv := &http.Server{Addr: metricsAddr, Handler: admin.NewServer(db, snapshotPath)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithComponent("admin").Error().Err(err).Msg("admin server stopped")
			}
		}()

		log.Logger.Info().Str("addr", metricsAddr).Str("db_path", dbPath).Msg("hydrantd ready")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		log.Logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithComponent("admin").Warn().Err(err).Msg("admin server shutdown")
		}
		if err := db.Persist(); err != nil {
			return fmt.Errorf("final persist: %w", err)
		}
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <dest>",
	Short: "Write a consistent point-in-time copy of the chain database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db-path")
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		env, err := kv.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer env.Close()

		if err := env.Snapshot(args[0], overwrite); err != nil {
			return fmt.Errorf("snapshotting database: %w", err)
		}
		fmt.Printf("wrote snapshot to %s\n", args[0])
		return nil
	},
}
