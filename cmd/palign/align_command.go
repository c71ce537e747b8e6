package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"palign/internal/aligner"
	"palign/internal/batch"
)

func newAlignCommand(ctx *commandContext) *cobra.Command {
	var audioPath string
	var transPath string
	var dictPath string
	var modelDir string
	var outDir string
	var engine string
	var policy string

	cmd := &cobra.Command{
		Use:   "align",
		Short: "Align a transcribed recording at the phoneme level",
		Long: "Align reads a recording and its orthographic transcription, builds a\n" +
			"pronunciation grammar per utterance, and runs the configured alignment\n" +
			"engine to produce time-aligned phoneme and token tiers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			if strings.TrimSpace(audioPath) == "" {
				return fmt.Errorf("--audio is required")
			}
			if strings.TrimSpace(transPath) == "" {
				return fmt.Errorf("--trans is required")
			}
			if strings.TrimSpace(dictPath) == "" {
				return fmt.Errorf("--dict is required")
			}

			store, err := batch.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runner := batch.NewRunner(cfg, store, logger)
			res, err := runner.Run(cmd.Context(), batch.Request{
				AudioPath: audioPath,
				TransPath: transPath,
				DictPath:  dictPath,
				ModelDir:  modelDir,
				OutDir:    outDir,
				Aligner:   engine,
				Policy:    policy,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			utterances, err := store.ListUtterances(cmd.Context(), res.Run.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderUtteranceTable(utterances))
			fmt.Fprintf(out, "Run %s: %d utterances, %d failed\n", res.Run.RunID, res.Summary.Total, res.Summary.Failed())
			if res.OutPath != "" {
				fmt.Fprintf(out, "Alignment written to %s\n", res.OutPath)
			}
			return res.FirstErr
		},
	}

	cmd.Flags().StringVar(&audioPath, "audio", "", "Recording to align (WAV)")
	cmd.Flags().StringVar(&transPath, "trans", "", "Orthographic transcription (TextGrid)")
	cmd.Flags().StringVar(&dictPath, "dict", "", "Pronunciation dictionary (HTK format)")
	cmd.Flags().StringVar(&modelDir, "model", "", "Acoustic model directory (overrides config)")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (defaults next to the recording)")
	cmd.Flags().StringVar(&engine, "aligner", "", "Alignment engine: "+strings.Join(aligner.Names(), ", "))
	cmd.Flags().StringVar(&policy, "policy", "", "Unknown word policy: fail, skip or spell")
	return cmd
}

func renderUtteranceTable(utterances []batch.Utterance) string {
	rows := make([][]string, 0, len(utterances))
	for _, utt := range utterances {
		detail := utt.ErrorMessage
		if detail == "" {
			detail = truncateText(utt.Text, 40)
		}
		rows = append(rows, []string{
			strconv.Itoa(utt.Position + 1),
			fmt.Sprintf("%.3f", utt.Start),
			fmt.Sprintf("%.3f", utt.End),
			string(utt.Status),
			detail,
		})
	}
	return renderTable([]string{"#", "Start", "End", "Status", "Detail"}, rows, 0, 1, 2)
}

func truncateText(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
