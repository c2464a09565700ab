package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/admission"
	"github.com/AshkanYarmoradi/go-reservo/cli/styles"
)

// readInput resolves a flag value that is inline text, @file or - for stdin.
func readInput(stdin io.Reader, arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(strings.TrimPrefix(arg, "@"))
	default:
		return []byte(arg), nil
	}
}

// readRequest decodes request data as a JSON object.
func readRequest(stdin io.Reader, arg string) (map[string]interface{}, error) {
	raw, err := readInput(stdin, arg)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := sonic.ConfigStd.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("request data is not a JSON object: %w", err)
	}
	return data, nil
}

// readState decodes state in the wire form returned by GET /state.
func readState(stdin io.Reader, arg string) (reservo.StateMap, error) {
	if arg == "" {
		return reservo.EmptyState(), nil
	}
	raw, err := readInput(stdin, arg)
	if err != nil {
		return reservo.StateMap{}, err
	}
	var state reservo.StateMap
	if err := state.UnmarshalJSON(raw); err != nil {
		return reservo.StateMap{}, fmt.Errorf("state is not valid: %w", err)
	}
	return state, nil
}

type decision struct {
	Command reservo.Command   `json:"command"`
	Outcome string            `json:"outcome"`
	Events  []reservo.Event   `json:"events,omitempty"`
	Failure *reservo.Failure  `json:"failure,omitempty"`
	State   *reservo.StateMap `json:"state,omitempty"`
}

// NewDecideCommand creates the decide command
func NewDecideCommand() *cobra.Command {
	var (
		kind      string
		data      string
		stateArg  string
		now       string
		asJSON    bool
		skipState bool
	)

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Decide a command against a state offline",
		Long: `Decide admits a request, runs the decision against the given state and
folds the resulting events into the next state. Nothing is published or
persisted.`,
		Example: `  reservo decide --kind CreateUser --data '{"username":"ana","password":"x","email":"ana@example.com","roles":["guest"]}'
  reservo decide --kind ConfirmReservation --data @confirm.json --state @state.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdin := cmd.InOrStdin()
			request, err := readRequest(stdin, data)
			if err != nil {
				return err
			}
			state, err := readState(stdin, stateArg)
			if err != nil {
				return err
			}

			decider := reservo.Decider{}
			if now != "" {
				t, err := time.Parse(time.RFC3339, now)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				decider.Now = func() time.Time { return t }
			}

			out := cmd.OutOrStdout()
			if v := admission.Validate(kind, request); !v.Valid {
				printValidation(out, kind, v)
				return fmt.Errorf("%s rejected by admission", kind)
			}
			command, err := admission.BuildCommand(kind, request)
			if err != nil {
				return err
			}

			result, err := decider.Decide(state, command)
			if err != nil {
				return err
			}

			d := decision{Command: command, Outcome: reservo.OutcomeOf(result, nil)}
			if success, ok := reservo.AsSuccess(result); ok {
				d.Events = success.Events
				if !skipState {
					next, err := reservo.Fold(state, success.Events...)
					if err != nil {
						return err
					}
					d.State = &next
				}
			}
			if failure, ok := reservo.AsFailure(result); ok {
				d.Failure = failure
			}

			if asJSON {
				body, err := sonic.ConfigStd.MarshalIndent(d, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(body))
				return nil
			}
			printDecision(out, d)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Command kind")
	cmd.Flags().StringVarP(&data, "data", "d", "{}", "Request data as JSON, @file or - for stdin")
	cmd.Flags().StringVarP(&stateArg, "state", "s", "", "Current state as wire JSON, @file or - for stdin")
	cmd.Flags().StringVar(&now, "now", "", "Decision time as RFC 3339 (default: current time)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decision as JSON")
	cmd.Flags().BoolVar(&skipState, "no-state", false, "Do not fold events into the next state")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func printDecision(w io.Writer, d decision) {
	fmt.Fprintln(w, styles.Title.Render(d.Command.String())+" "+styles.OutcomeBadge(d.Outcome))

	if d.Failure != nil {
		fmt.Fprintln(w, styles.FormatError(fmt.Sprintf("%s: %s", d.Failure.ErrorType, d.Failure.Message())))
		return
	}

	events := styles.NewTable("Event", "Key", "Fields")
	for _, evt := range d.Events {
		events.AddRow(evt.Kind, evt.AggregateKey, strings.Join(evt.Data.Keys(), ", "))
	}
	fmt.Fprintln(w, events.Render())

	if d.State == nil {
		return
	}
	fmt.Fprintln(w, styles.Subtitle.Render("Next state"))
	state := styles.NewTable("Field", "Value")
	for _, k := range d.State.Keys() {
		v, _ := d.State.Get(k)
		state.AddRow(k, v.Text())
	}
	fmt.Fprintln(w, state.Render())
}
