package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/repository"
	"github.com/spec-kit/ticket-bridge/internal/syncstate"
)

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect routing rules",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <tenant-id>",
		Short: "List a tenant's routing rules in evaluation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rules []domain.RoutingRule
			err := rootOpts.withStore(cmd.Context(), func(store syncstate.Store) error {
				var err error
				rules, err = repository.NewTenantRepository(store).ListRules(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rules)
			}
			return printRules(cmd, rules)
		},
	})
	return cmd
}

func printRules(cmd *cobra.Command, rules []domain.RoutingRule) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tRULE\tENABLED\tMATCH\tCHANNEL")
	for _, r := range rules {
		channel := r.TargetChannel
		if r.SkipAssignment {
			channel += " (no assign)"
		}
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%s\n", r.Priority, r.RuleID, r.Enabled, describeMatch(r), channel)
	}
	return w.Flush()
}

func describeMatch(r domain.RoutingRule) string {
	switch {
	case r.MatchSubjectRegex != "":
		return "subject~/" + r.MatchSubjectRegex + "/"
	case r.MatchSubject != "":
		return "subject:" + r.MatchSubject
	case r.MatchContact != "":
		return "contact:" + r.MatchContact
	}
	return "-"
}
