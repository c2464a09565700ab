// Package commands provides the CLI command implementations for reservo.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-reservo/cli/config"
	"github.com/AshkanYarmoradi/go-reservo/cli/styles"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	noColor    bool
}

func (o *globalOptions) load() (*config.Config, error) {
	return loadConfig(o.configPath)
}

// NewRootCommand creates the root command for the reservo CLI
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "reservo",
		Short: "Event-sourced reservation engine",
		Long: styles.Title.Render("reservo") + `

Reservo decides user and reservation commands against materialized state,
publishes the resulting events and persists the projected state.

` + styles.Subtitle.Render("Quick Start:") + `

  ` + styles.Code.Render("reservo config init") + `     Write a reservo.yaml
  ` + styles.Code.Render("reservo serve") + `           Run the HTTP admission gate
  ` + styles.Code.Render("reservo consume") + `         Handle commands from the broker
  ` + styles.Code.Render("reservo decide") + `          Decide a command offline
  ` + styles.Code.Render("reservo diagnose") + `        Check your setup`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				styles.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to reservo.yaml (default: nearest reservo.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewServeCommand(opts))
	rootCmd.AddCommand(NewConsumeCommand(opts))
	rootCmd.AddCommand(NewSendCommand(opts))
	rootCmd.AddCommand(NewDecideCommand())
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewConfigCommand(opts))
	rootCmd.AddCommand(NewDiagnoseCommand(opts))
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}

	return nil
}
