package main

import (
	"context"
	"fmt"

	"github.com/mdouchement/aletsch/internal/control"
	"github.com/spf13/cobra"
)

func vaultCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "vault",
		Short: "Manage vaults",
	}

	c.AddCommand(&cobra.Command{
		Use:   "create <vault>",
		Short: "Create a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return controller(c, func(ctx context.Context, ctrl *control.Controller) error {
				if err := ctrl.CreateContainer(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "%s: created\n", args[0])
				return nil
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "list <vault>",
		Short: "Request the inventory of a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return controller(c, func(ctx context.Context, ctrl *control.Controller) error {
				job, err := ctrl.RequestInventory(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "%s: inventory requested, job %s\n", args[0], job.JobID)
				return nil
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "erase <vault> [job]",
		Short: "Delete all the archives listed by an inventory job",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			var prefix string
			if len(args) == 2 {
				prefix = args[1]
			}

			return controller(c, func(ctx context.Context, ctrl *control.Controller) error {
				erasure, err := ctrl.EraseContainer(ctx, args[0], prefix)
				if err != nil {
					return err
				}

				b := &batch{w: c.OutOrStdout()}
				for _, archive := range erasure.Archives {
					archive := archive
					b.run(archive.ArchiveID, func() (string, error) {
						if archive.Err != nil {
							return "", archive.Err
						}
						if archive.Filename != "" {
							return "deleted, unbound " + archive.Filename, nil
						}
						return "deleted", nil
					})
				}
				return b.err()
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "delete <vault>",
		Short: "Delete an empty vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return controller(c, func(ctx context.Context, ctrl *control.Controller) error {
				if err := ctrl.DeleteContainer(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "%s: deleted\n", args[0])
				return nil
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "known",
		Short: "List the vaults known locally",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return controller(c, func(_ context.Context, ctrl *control.Controller) error {
				containers, err := ctrl.ListContainers()
				if err != nil {
					return err
				}
				for _, container := range containers {
					fmt.Fprintln(c.OutOrStdout(), container.Name)
				}
				return nil
			})
		},
	})

	return c
}
