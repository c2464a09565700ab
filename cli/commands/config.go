package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AshkanYarmoradi/go-reservo/cli/config"
	"github.com/AshkanYarmoradi/go-reservo/cli/styles"
)

// NewConfigCommand creates the config command group
func NewConfigCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show and validate reservo.yaml",
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand(opts))
	cmd.AddCommand(newConfigValidateCommand(opts))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		dir         string
		stateDriver string
		broker      string
		codec       string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a reservo.yaml with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				dir = cwd
			}
			if config.Exists(dir) && !force {
				return fmt.Errorf("%s already exists in %s (use --force to overwrite)", config.ConfigFileName, dir)
			}

			cfg := config.DefaultConfig()
			cfg.State.Driver = stateDriver
			cfg.State.Codec = codec
			cfg.Broker.Driver = broker

			if err := cfg.Save(dir); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.FormatSuccess("Created "+filepath.Join(dir, config.ConfigFileName)))
			for _, problem := range cfg.Validate() {
				fmt.Fprintln(out, styles.FormatWarning(problem))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to write to (default: working directory)")
	cmd.Flags().StringVar(&stateDriver, "state", config.DriverMemory, "State driver: memory, redis, postgres, aztables")
	cmd.Flags().StringVar(&broker, "broker", config.BrokerMemory, "Broker driver: memory, kafka, sns, azqueue, webhook")
	cmd.Flags().StringVar(&codec, "codec", config.CodecJSON, "Codec: json, msgpack, protobuf")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration, environment overrides included",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range cfg.Warnings() {
				fmt.Fprintln(out, styles.FormatWarning(w))
			}
			problems := cfg.Validate()
			if len(problems) == 0 {
				fmt.Fprintln(out, styles.FormatSuccess("Configuration is valid"))
				return nil
			}
			for _, p := range problems {
				fmt.Fprintln(out, styles.FormatError(p))
			}
			return fmt.Errorf("%d configuration problem(s)", len(problems))
		},
	}
}
