package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patchgate/patchgate/service/gate"
)

var (
	approvalsStatus string
	approvalsActor  string
)

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.AddCommand(approvalsListCmd, approvalsApproveCmd, approvalsDenyCmd)

	approvalsListCmd.Flags().StringVar(&approvalsStatus, "status", "",
		"filter by status (pending, approved, denied)")
	for _, cmd := range []*cobra.Command{approvalsApproveCmd, approvalsDenyCmd} {
		cmd.Flags().StringVar(&approvalsActor, "actor", "", "identity recorded as the decision maker")
		_ = cmd.MarkFlagRequired("actor")
	}
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Inspect and resolve the approval queue",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval records",
	RunE:  runApprovalsList,
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending record and apply its effect",
	Args:  cobra.ExactArgs(1),
	RunE:  resolveRunE(gate.OutcomeApprove),
}

var approvalsDenyCmd = &cobra.Command{
	Use:   "deny <id>",
	Short: "Deny a pending record, discarding its effect",
	Args:  cobra.ExactArgs(1),
	RunE:  resolveRunE(gate.OutcomeDeny),
}

func runApprovalsList(_ *cobra.Command, _ []string) error {
	path := "/v1/approvals"
	if approvalsStatus != "" {
		path += "?status=" + url.QueryEscape(approvalsStatus)
	}
	var records []gate.Record
	if err := callServer(http.MethodGet, path, nil, &records); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCAPABILITY\tSTATUS\tCREATED\tRESOLVED BY")
	for _, record := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			record.ID, record.Capability, record.Status,
			record.CreatedAt.Format("2006-01-02 15:04:05"), record.ResolvedBy)
	}
	return w.Flush()
}

func resolveRunE(outcome gate.Outcome) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		var record gate.Record
		err := callServer(http.MethodPost,
			"/v1/approvals/"+url.PathEscape(args[0])+"/"+string(outcome),
			map[string]string{"actor": approvalsActor}, &record)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s by %s\n", record.ID, record.Status, record.ResolvedBy)
		return nil
	}
}
