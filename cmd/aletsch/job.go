package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mdouchement/aletsch/internal/control"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func jobCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "job",
		Short: "Manage asynchronous jobs",
	}

	c.AddCommand(&cobra.Command{
		Use:   "status [job]",
		Short: "Refresh and show the status of the jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			}

			return controller(c, func(ctx context.Context, ctrl *control.Controller) error {
				reconciliations, err := ctrl.ReconcileJobs(ctx, prefix)
				if err != nil {
					return err
				}

				b := &batch{w: c.OutOrStdout()}
				for _, r := range reconciliations {
					r := r
					b.run(r.Job.JobID, func() (string, error) {
						switch {
						case r.Err != nil:
							return "", r.Err
						case r.Evicted:
							return "expired, removed", nil
						}
						return fmt.Sprintf("%s %s %s", r.Job.Container, r.Job.Action, r.Job.StatusCode), nil
					})
				}
				return b.err()
			})
		},
	})

	var output string
	outputCmd := &cobra.Command{
		Use:   "output [job] [vault]",
		Short: "Fetch the output of a succeeded job",
		Long:  "Fetch the output of a succeeded job. With a vault, a job not recorded locally is fetched from the remote side.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			var prefix, vault string
			if len(args) > 0 {
				prefix = args[0]
			}
			if len(args) > 1 {
				vault = args[1]
			}

			return controller(c, func(ctx context.Context, ctrl *control.Controller) error {
				var out *gateway.JobOutput
				var err error
				if vault == "" {
					_, out, err = ctrl.JobOutput(ctx, prefix)
				} else {
					_, out, err = ctrl.VaultJobOutput(ctx, vault, prefix)
				}
				if err != nil {
					return err
				}
				defer out.Close()

				if output == "" {
					return render(c.OutOrStdout(), out)
				}
				return save(output, out)
			})
		},
	}
	outputCmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default to stdout)")
	c.AddCommand(outputCmd)

	c.AddCommand(&cobra.Command{
		Use:   "remove [job]",
		Short: "Forget a job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			}

			return controller(c, func(_ context.Context, ctrl *control.Controller) error {
				job, err := ctrl.RemoveJob(prefix)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "%s: removed\n", job.JobID)
				return nil
			})
		},
	})

	return c
}

// render writes the inventory as indented JSON or the archive bytes.
func render(w io.Writer, out *gateway.JobOutput) error {
	if out.Inventory != nil {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return errors.Wrap(encoder.Encode(out.Inventory), "could not write inventory")
	}

	_, err := io.Copy(w, out.Body)
	return errors.Wrap(err, "could not write archive")
}

// save renders the output in the given file.
func save(filename string, out *gateway.JobOutput) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "could not create output")
	}

	if err = render(f, out); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "could not write output")
}
