package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"runtime"

	"github.com/mdouchement/aletsch/internal/config"
	"github.com/mdouchement/aletsch/internal/control"
	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/emulator"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfgfile string
	verbose bool
)

func main() {
	c := &cobra.Command{
		Use:           "aletsch",
		Short:         "Cold storage vaults manager",
		Version:       fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:          cobra.ExactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.PersistentFlags().StringVarP(&cfgfile, "config", "c", "", "Configuration file")
	c.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	c.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for aletsch",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(c.Version)
		},
	})
	c.AddCommand(initCmd)
	c.AddCommand(reindexCmd)
	c.AddCommand(vaultCmd())
	c.AddCommand(archiveCmd())
	c.AddCommand(jobCmd())
	c.AddCommand(emulatorCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := c.ExecuteContext(ctx)
	stop()

	if err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
	}
	os.Exit(exitCode(err))
}

// exitCode returns 0 on success, 2 on user errors and 1 on anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case control.IsUserError(err):
		return 2
	default:
		return 1
	}
}

var (
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Init the database",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgfile)
			if err != nil {
				return err
			}
			return database.StormInit(cfg.DatabasePath)
		},
	}

	//

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Reindex the database",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgfile)
			if err != nil {
				return err
			}
			return database.StormReIndex(cfg.DatabasePath)
		},
	}
)

func newLogger(cfg *config.Config) logger.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logger.LogrusTextFormatter{
		DisableColors:   false,
		ForceColors:     true,
		ForceFormatting: true,
		PrefixRE:        regexp.MustCompile(`^(\[.*?\])\s`),
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if verbose || cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return logger.WrapLogrus(log)
}

func newGateway(ctx context.Context, cfg *config.Config) (gateway.Gateway, error) {
	switch cfg.Backend {
	case config.Emulator:
		return gateway.NewEmulator(cfg.EmulatorGateway(emulator.CraftToken(cfg.Emulator.AccessKey)))
	default:
		return gateway.NewGlacier(ctx, cfg.GlacierGateway())
	}
}

// controller runs fn with a controller backed by the configured database and gateway.
func controller(c *cobra.Command, fn func(ctx context.Context, ctrl *control.Controller) error) error {
	cfg, err := config.Load(cfgfile)
	if err != nil {
		return err
	}
	if err = cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	ctx := c.Context()

	gw, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}

	db, err := database.StormOpen(cfg.DatabasePath)
	if err != nil {
		return errors.Wrap(err, "could not open database")
	}
	defer db.Close()

	return fn(ctx, &control.Controller{
		Logger:   newLogger(cfg),
		Database: db,
		Gateway:  gw,
	})
}
