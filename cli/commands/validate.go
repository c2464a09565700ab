package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-reservo/admission"
	"github.com/AshkanYarmoradi/go-reservo/cli/styles"
)

func printValidation(w io.Writer, kind string, v admission.ValidationResult) {
	if v.Valid {
		fmt.Fprintln(w, styles.FormatSuccess(kind+" is admissible"))
		return
	}
	fmt.Fprintln(w, styles.FormatError(fmt.Sprintf("%s has %d problem(s)", kind, len(v.Errors))))
	for _, e := range v.Errors {
		fmt.Fprintln(w, "  "+styles.Muted.Render(styles.IconDot)+" "+e)
	}
}

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	var (
		kind   string
		data   string
		asJSON bool
		list   bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check request data against the admission table",
		Example: `  reservo validate --kind CreateReservation --data @reservation.json
  reservo validate --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				kinds := make([]string, 0, len(admission.CommandSchema))
				for k := range admission.CommandSchema {
					kinds = append(kinds, k)
				}
				sort.Strings(kinds)
				tbl := styles.NewTable("Kind", "Validators")
				for _, k := range kinds {
					tbl.AddRow(k, fmt.Sprint(len(admission.CommandSchema[k])))
				}
				fmt.Fprintln(out, tbl.Render())
				return nil
			}

			if kind == "" {
				return fmt.Errorf("--kind is required")
			}
			request, err := readRequest(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}

			v := admission.Validate(kind, request)
			if asJSON {
				body, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(body))
			} else {
				if !admission.CommandSchema.HasSchema(kind) {
					fmt.Fprintln(out, styles.FormatWarning(kind+" has no schema and is forwarded unchecked"))
				}
				printValidation(out, kind, v)
			}
			if !v.Valid {
				return fmt.Errorf("%s rejected by admission", kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Command kind")
	cmd.Flags().StringVarP(&data, "data", "d", "{}", "Request data as JSON, @file or - for stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&list, "list", false, "List the kinds in the admission table")
	return cmd
}
