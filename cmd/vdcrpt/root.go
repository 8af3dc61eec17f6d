package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vdcrpt/internal/services"
)

func newRootCommand() *cobra.Command {
	var flags rootFlags

	ctx := newCommandContext(&flags)

	rootCmd := &cobra.Command{
		Use:           "vdcrpt",
		Short:         "Corrupt video files by mangling their encoded bytes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFiles(flags.envFiles); err != nil {
				return err
			}
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return services.Wrap(services.ErrValidation, "cli", "flags", "", err)
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	pf.BoolVar(&flags.json, "json", false, "Emit machine-readable JSON instead of tables")
	pf.StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "Environment files loaded before configuration")

	rootCmd.AddCommand(newCorruptCommand(ctx))
	rootCmd.AddCommand(newPresetsCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))

	return rootCmd
}

type rootFlags struct {
	configPath string
	logLevel   string
	json       bool
	envFiles   []string
}

// loadEnvFiles applies KEY=VALUE files without overriding variables that are
// already set. Missing files are skipped.
func loadEnvFiles(paths []string) error {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return services.Wrap(services.ErrConfiguration, "cli", "env", path, err)
		}
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// exactArgs is cobra.ExactArgs tagged as a usage error.
func exactArgs(n int, names ...string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == n {
			return nil
		}
		msg := fmt.Sprintf("accepts %d arg(s), received %d", n, len(args))
		if len(names) > 0 {
			msg = fmt.Sprintf("expected %s", strings.Join(names, " "))
		}
		return services.Wrap(services.ErrValidation, cmd.Name(), "args", msg, nil)
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
