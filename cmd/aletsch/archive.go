package main

import (
	"context"
	"fmt"

	"github.com/mdouchement/aletsch/internal/control"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/spf13/cobra"
)

func archiveCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "archive",
		Short: "Manage archives",
	}

	c.AddCommand(&cobra.Command{
		Use:   "write <vault> <file...>",
		Short: "Upload files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return controller(c, func(ctx context.Context, ctrl *control.Controller) error {
				b := &batch{w: c.OutOrStdout()}
				for _, filename := range args[1:] {
					filename := filename
					b.run(filename, func() (string, error) {
						binding, err := ctrl.Upload(ctx, args[0], filename)
						if err != nil {
							return "", err
						}
						return "uploaded as " + binding.ArchiveID, nil
					})
				}
				return b.err()
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "read <vault> <file-or-archive...>",
		Short: "Request the retrieval of archives",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return controller(c, func(ctx context.Context, ctrl *control.Controller) error {
				b := &batch{w: c.OutOrStdout()}
				for _, name := range args[1:] {
					name := name
					b.run(name, func() (string, error) {
						job, err := ctrl.RequestRetrieval(ctx, args[0], name)
						if err != nil {
							return "", err
						}
						return "retrieval requested, job " + job.JobID, nil
					})
				}
				return b.err()
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "delete <vault> <file-or-archive...>",
		Short: "Delete archives",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return controller(c, func(ctx context.Context, ctrl *control.Controller) error {
				b := &batch{w: c.OutOrStdout()}
				for _, name := range args[1:] {
					name := name
					b.run(name, func() (string, error) {
						deletion, err := ctrl.DeleteArchive(ctx, args[0], name)
						if err != nil {
							return "", err
						}
						if deletion.Stale {
							return "already deleted, unbound " + deletion.ArchiveID, nil
						}
						return "deleted " + deletion.ArchiveID, nil
					})
				}
				return b.err()
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "list <vault>",
		Short: "List the archives bound locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return controller(c, func(_ context.Context, ctrl *control.Controller) error {
				return ctrl.EachArchive(args[0], func(binding *model.Binding) error {
					_, err := fmt.Fprintf(c.OutOrStdout(), "%s\t%s\n", binding.ArchiveID, binding.Filename)
					return err
				})
			})
		},
	})

	return c
}
