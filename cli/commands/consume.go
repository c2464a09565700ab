package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-reservo/admission"
	"github.com/AshkanYarmoradi/go-reservo/cli/styles"
)

// NewConsumeCommand creates the consume command
func NewConsumeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Handle commands from the broker's command topic or queue",
		Long: `Consume reads encoded commands from the kafka command topic or the
azqueue command queue and handles each one in process. It stops on SIGINT,
SIGTERM, or when a collaborator fault leaves a command unhandled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := NewRuntime(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			consumer, err := rt.CommandConsumer()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.FormatInfo("Consuming commands from "+cfg.Broker.Driver))
			if err := consumer.Run(ctx, rt.Handle); err != nil {
				return err
			}
			fmt.Fprintln(out, styles.FormatSuccess("Consumer stopped"))
			return nil
		},
	}
}

// NewSendCommand creates the send command
func NewSendCommand(opts *globalOptions) *cobra.Command {
	var (
		kind string
		data string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Admit a request and write it to the command topic or queue",
		Example: `  reservo send --kind CancelReservation --data @cancel.json
  echo '{"userId": "..."}' | reservo send --kind DeleteUser --data -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			request, err := readRequest(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}

			if v := admission.Validate(kind, request); !v.Valid {
				printValidation(cmd.OutOrStdout(), kind, v)
				return fmt.Errorf("%s rejected by admission", kind)
			}
			command, err := admission.BuildCommand(kind, request)
			if err != nil {
				return err
			}

			rt, err := NewRuntime(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			sender, err := rt.CommandSender()
			if err != nil {
				return err
			}
			if err := sender.Send(ensureContext(cmd.Context()), command.AggregateKey, command); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess(fmt.Sprintf("Sent %s", command)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Command kind")
	cmd.Flags().StringVarP(&data, "data", "d", "{}", "Request data as JSON, @file or - for stdin")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
