package commands

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/cli/config"
	"github.com/AshkanYarmoradi/go-reservo/cli/styles"
)

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run diagnostic checks",
		Long: `Run diagnostic checks on your reservo setup.

This command verifies:
  • Configuration validity
  • State backend connectivity
  • Broker wiring
  • A dry-run decision through the configured codec`,
		Aliases: []string{"diag", "doctor"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(ensureContext(cmd.Context()), 15*time.Second)
			defer cancel()

			env := newDiagnosticEnv(ctx, opts, cmd.ErrOrStderr())
			defer env.Close()

			runDiagnose(cmd.OutOrStdout(), env.checks(ctx))
			return nil
		},
	}
}

// CheckStatus represents the status of a diagnostic check
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Name           string
	Status         CheckStatus
	Message        string
	Recommendation string
}

func newCheckResult(name string, status CheckStatus, message string) CheckResult {
	return CheckResult{Name: name, Status: status, Message: message}
}

func (r CheckResult) withRecommendation(rec string) CheckResult {
	r.Recommendation = rec
	return r
}

// DiagnosticCheck represents a diagnostic check function
type DiagnosticCheck struct {
	Name  string
	Check func() CheckResult
}

// diagnosticEnv loads the configuration and runtime once for every check.
type diagnosticEnv struct {
	cfg    *config.Config
	cfgErr error
	rt     *Runtime
	rtErr  error
}

func newDiagnosticEnv(ctx context.Context, opts *globalOptions, traceOut io.Writer) *diagnosticEnv {
	env := &diagnosticEnv{}
	env.cfg, env.cfgErr = opts.load()
	if env.cfgErr == nil && len(env.cfg.Validate()) == 0 {
		env.rt, env.rtErr = NewRuntime(ctx, env.cfg, traceOut)
	}
	return env
}

func (e *diagnosticEnv) Close() {
	if e.rt != nil {
		_ = e.rt.Close()
	}
}

func (e *diagnosticEnv) checks(ctx context.Context) []DiagnosticCheck {
	return []DiagnosticCheck{
		{Name: "Go Version", Check: checkGoVersion},
		{Name: "Configuration", Check: e.checkConfiguration},
		{Name: "State Backend", Check: func() CheckResult { return e.checkStateBackend(ctx) }},
		{Name: "Broker", Check: e.checkBroker},
		{Name: "Decision", Check: e.checkDecision},
	}
}

func runDiagnose(w io.Writer, checks []DiagnosticCheck) []CheckResult {
	fmt.Fprintln(w, styles.Title.Render("Running Diagnostics"))
	fmt.Fprintln(w)

	results := make([]CheckResult, 0, len(checks))
	allPassed := true

	for _, check := range checks {
		fmt.Fprintf(w, "  %s Checking %s... ", styles.IconPending, check.Name)

		result := check.Check()
		results = append(results, result)

		switch result.Status {
		case StatusOK:
			fmt.Fprintln(w, styles.SuccessStyle.Render("OK"))
		case StatusWarning:
			fmt.Fprintln(w, styles.WarningStyle.Render("WARNING"))
			allPassed = false
		default:
			fmt.Fprintln(w, styles.ErrorStyle.Render("FAILED"))
			allPassed = false
		}

		if result.Message != "" {
			fmt.Fprintf(w, "    %s\n", styles.Muted.Render(result.Message))
		}
	}
	fmt.Fprintln(w)

	if allPassed {
		fmt.Fprintln(w, styles.FormatSuccess("All checks passed! Your reservo setup is healthy."))
		return results
	}

	fmt.Fprintln(w, styles.FormatWarning("Some checks failed or have warnings."))
	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.Subtitle.Render("Recommendations:"))
	for _, r := range results {
		if r.Recommendation != "" {
			fmt.Fprintf(w, "  %s %s\n", styles.IconArrow, r.Recommendation)
		}
	}
	return results
}

func checkGoVersion() CheckResult {
	version := runtime.Version()
	if version < "go1.21" {
		return newCheckResult("Go Version", StatusWarning, version).
			withRecommendation("Upgrade to Go 1.21 or later")
	}
	return newCheckResult("Go Version", StatusOK, version)
}

func (e *diagnosticEnv) checkConfiguration() CheckResult {
	const name = "Configuration"
	if e.cfgErr != nil {
		return newCheckResult(name, StatusError, fmt.Sprintf("Invalid config: %v", e.cfgErr)).
			withRecommendation("Check reservo.yaml syntax and RESERVO_* variables")
	}
	if problems := e.cfg.Validate(); len(problems) > 0 {
		return newCheckResult(name, StatusError, fmt.Sprintf("%d validation errors", len(problems))).
			withRecommendation(problems[0])
	}
	return newCheckResult(name, StatusOK,
		fmt.Sprintf("State: %s/%s, Broker: %s", e.cfg.State.Driver, e.cfg.State.Codec, e.cfg.Broker.Driver))
}

func (e *diagnosticEnv) runtimeUnavailable(name string) (CheckResult, bool) {
	switch {
	case e.rt != nil:
		return CheckResult{}, false
	case e.rtErr != nil:
		return newCheckResult(name, StatusError, e.rtErr.Error()).
			withRecommendation("Verify backend addresses and credentials"), true
	default:
		return newCheckResult(name, StatusWarning, "Skipped (configuration invalid)"), true
	}
}

func (e *diagnosticEnv) checkStateBackend(ctx context.Context) CheckResult {
	const name = "State Backend"
	if r, skip := e.runtimeUnavailable(name); skip {
		return r
	}
	if err := pingWithTimeout(ctx, e.rt); err != nil {
		return newCheckResult(name, StatusError, err.Error()).
			withRecommendation("Check the " + e.cfg.State.Driver + " server status")
	}
	return newCheckResult(name, StatusOK, e.cfg.State.Driver+" reachable")
}

func (e *diagnosticEnv) checkBroker() CheckResult {
	const name = "Broker"
	if r, skip := e.runtimeUnavailable(name); skip {
		return r
	}
	if _, err := e.rt.CommandSender(); err != nil {
		return newCheckResult(name, StatusOK, e.cfg.Broker.Driver+" publishes events; commands only via serve")
	}
	return newCheckResult(name, StatusOK, e.cfg.Broker.Driver+" publishes events and carries commands")
}

// checkDecision decides a CreateUser and round-trips the projected state
// through the configured codec.
func (e *diagnosticEnv) checkDecision() CheckResult {
	const name = "Decision"
	if r, skip := e.runtimeUnavailable(name); skip {
		return r
	}

	cmd := reservo.NewCommand(reservo.CreateUser, "diagnose", reservo.NewStateMap(map[string]reservo.Value{
		reservo.FieldUserID:   reservo.String("diagnose"),
		reservo.FieldUsername: reservo.String("diagnose"),
		reservo.FieldEmail:    reservo.String("diagnose@example.com"),
		reservo.FieldRoles:    reservo.Strings("guest"),
	}))
	result, err := reservo.Decide(reservo.EmptyState(), cmd)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error())
	}
	success, ok := reservo.AsSuccess(result)
	if !ok {
		return newCheckResult(name, StatusError, "CreateUser on empty state did not succeed")
	}
	state, err := reservo.Fold(reservo.EmptyState(), success.Events...)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error())
	}

	data, err := e.rt.Codec.EncodeState(state)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error())
	}
	decoded, err := e.rt.Codec.DecodeState(data)
	if err != nil || !decoded.Equal(state) {
		return newCheckResult(name, StatusError, fmt.Sprintf("%s codec does not round-trip state", e.rt.Codec.Name())).
			withRecommendation("Switch state.codec to json")
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("%d event(s), %d bytes as %s", len(success.Events), len(data), e.rt.Codec.Name()))
}
