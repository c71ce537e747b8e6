package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"palign/internal/batch"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show recorded alignment runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := batch.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return showRun(cmd, store, args[0])
			}
			return listRuns(cmd, store)
		},
	}
	return cmd
}

func listRuns(cmd *cobra.Command, store *batch.Store) error {
	runs, err := store.ListRuns(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		summary, err := store.Summarize(cmd.Context(), run.ID)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			run.RunID,
			filepath.Base(run.AudioPath),
			run.Aligner,
			strconv.Itoa(summary.Total),
			strconv.Itoa(summary.Counts[batch.StatusDone]),
			strconv.Itoa(summary.Failed()),
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Audio", "Aligner", "Utterances", "Done", "Failed", "Created"},
		rows, 3, 4, 5))
	return nil
}

func showRun(cmd *cobra.Command, store *batch.Store, runID string) error {
	run, err := store.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	utterances, err := store.ListUtterances(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	summary, err := store.Summarize(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:     %s\n", run.RunID)
	fmt.Fprintf(out, "Audio:   %s\n", run.AudioPath)
	fmt.Fprintf(out, "Trans:   %s\n", run.TransPath)
	fmt.Fprintf(out, "Aligner: %s\n", run.Aligner)
	fmt.Fprintf(out, "Created: %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out, renderUtteranceTable(utterances))
	fmt.Fprintf(out, "%d utterances, %d done, %d failed\n", summary.Total, summary.Counts[batch.StatusDone], summary.Failed())
	return nil
}
