package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vdcrpt/internal/presets"
	"vdcrpt/internal/services"
)

type presetView struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Iterations  int      `json:"iterations"`
	Effects     []string `json:"effects"`
	BuiltIn     bool     `json:"built_in"`
}

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List built-in and configured effect presets",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := presets.FromConfig(cfg)
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "presets", "load", "", err)
			}
			all := catalog.All()

			if ctx.jsonOutput() {
				views := make([]presetView, 0, len(all))
				for _, p := range all {
					v := presetView{
						Name:        p.Name,
						Description: p.Description,
						Iterations:  p.Iterations,
						BuiltIn:     p.BuiltIn,
					}
					for _, e := range p.Pool.Effects() {
						v.Effects = append(v.Effects, e.String())
					}
					views = append(views, v)
				}
				return writeJSON(cmd, views)
			}

			rows := make([][]string, 0, len(all))
			for _, p := range all {
				source := "config"
				if p.BuiltIn {
					source = "built-in"
				}
				rows = append(rows, []string{p.Name, strconv.Itoa(p.Iterations), p.Pool.String(), source, p.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Iterations", "Effects", "Source", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}
