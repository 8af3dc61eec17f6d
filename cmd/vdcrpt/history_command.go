package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vdcrpt/internal/history"
)

type historyView struct {
	ID           int64     `json:"id"`
	JobID        string    `json:"job_id"`
	Input        string    `json:"input"`
	Output       string    `json:"output"`
	Effects      string    `json:"effects"`
	Iterations   int       `json:"iterations"`
	Seed         *uint64   `json:"seed,omitempty"`
	CacheHit     bool      `json:"cache_hit"`
	Status       string    `json:"status"`
	FailureKind  string    `json:"failure_kind,omitempty"`
	FailureStage string    `json:"failure_stage,omitempty"`
	Message      string    `json:"message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent corruption runs",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if store == nil {
				fmt.Fprintln(out, "History is disabled (set history.enabled = true in config.toml)")
				return nil
			}
			defer store.Close()

			if clearAll {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d history entries\n", removed)
				return nil
			}

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				views := make([]historyView, 0, len(entries))
				for _, e := range entries {
					views = append(views, newHistoryView(e))
				}
				return writeJSON(cmd, views)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Started", "Status", "Input", "Output", "Effects", "Iter", "Seed", "Cache", "Duration"},
				historyRows(entries),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", history.DefaultLimit, "Number of runs to show")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all recorded runs")
	return cmd
}

func historyRows(entries []history.Entry) [][]string {
	const stampLayout = "2006-01-02 15:04"
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := string(e.Status)
		if e.FailureKind != "" {
			status = fmt.Sprintf("%s (%s)", status, e.FailureKind)
		}
		seed := "-"
		if e.SeedKnown {
			seed = strconv.FormatUint(e.Seed, 10)
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.StartedAt.Local().Format(stampLayout),
			status,
			filepath.Base(e.InputPath),
			filepath.Base(e.OutputPath),
			e.Effects,
			strconv.Itoa(e.Iterations),
			seed,
			yesNo(e.CacheHit),
			e.Duration.Round(time.Millisecond).String(),
		})
	}
	return rows
}

func newHistoryView(e history.Entry) historyView {
	v := historyView{
		ID:           e.ID,
		JobID:        e.JobID,
		Input:        e.InputPath,
		Output:       e.OutputPath,
		Effects:      e.Effects,
		Iterations:   e.Iterations,
		CacheHit:     e.CacheHit,
		Status:       string(e.Status),
		FailureKind:  e.FailureKind,
		FailureStage: e.FailureStage,
		Message:      e.Message,
		StartedAt:    e.StartedAt,
		DurationMS:   e.Duration.Milliseconds(),
	}
	if e.SeedKnown {
		seed := e.Seed
		v.Seed = &seed
	}
	return v
}
