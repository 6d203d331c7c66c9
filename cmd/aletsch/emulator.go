package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mdouchement/aletsch/internal/config"
	"github.com/mdouchement/aletsch/internal/emulator"
	"github.com/mdouchement/aletsch/internal/emulator/registry"
	"github.com/mdouchement/aletsch/internal/scheduler"
	"github.com/mdouchement/aletsch/internal/storage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func emulatorCmd() *cobra.Command {
	var binding, port string

	c := &cobra.Command{
		Use:   "emulator",
		Short: "Start a local cold storage emulator",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgfile)
			if err != nil {
				return err
			}
			if binding != "" {
				cfg.Emulator.Binding = binding
			}
			if port != "" {
				cfg.Emulator.Port = port
			}

			ctrl := emulator.Controller{
				Version:         c.Root().Version,
				Logger:          newLogger(cfg),
				AccessKey:       cfg.Emulator.AccessKey,
				CompletionDelay: cfg.Emulator.CompletionDelay,
				Expiration:      cfg.Emulator.Expiration,
			}

			//

			reg, err := registry.Open(cfg.Emulator.DatabasePath)
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer reg.Close()
			ctrl.Registry = reg

			//

			ctrl.Storage = storage.NewFileSystem(cfg.Emulator.StoragePath)

			//

			cron, err := scheduler.Start(scheduler.Controller{
				Logger:        ctrl.Logger,
				Registry:      ctrl.Registry,
				Storage:       ctrl.Storage,
				Specification: cfg.Emulator.Sweep,
				Expiration:    cfg.Emulator.Expiration,
			})
			if err != nil {
				return errors.Wrap(err, "could not start scheduler")
			}
			defer cron.Stop()

			//

			engine := emulator.EchoEngine(ctrl)
			emulator.PrintRoutes(engine)

			go func() {
				<-c.Context().Done()

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				engine.Shutdown(ctx) //nolint:errcheck
			}()

			listen := fmt.Sprintf("%s:%s", cfg.Emulator.Binding, cfg.Emulator.Port)
			ctrl.Logger.Infof("Server listening on %s", listen)
			if err = engine.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "could not run server")
			}
			return nil
		},
	}
	c.Flags().StringVarP(&binding, "binding", "b", "", "Server's binding")
	c.Flags().StringVarP(&port, "port", "p", "", "Server's port")

	return c
}
