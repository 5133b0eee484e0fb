package cli

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd, policyModeCmd)
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and change the active policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active mode and overrides",
	RunE:  runPolicyShow,
}

var policyModeCmd = &cobra.Command{
	Use:   "mode <playground|dev|trusted|prod>",
	Short: "Switch the operating mode",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyMode,
}

type policySnapshot struct {
	Mode      string            `json:"mode"`
	Overrides map[string]string `json:"overrides"`
}

func runPolicyShow(_ *cobra.Command, _ []string) error {
	var snapshot policySnapshot
	if err := callServer(http.MethodGet, "/v1/policy", nil, &snapshot); err != nil {
		return err
	}

	fmt.Printf("mode: %s\n", snapshot.Mode)
	if len(snapshot.Overrides) == 0 {
		return nil
	}
	capabilities := make([]string, 0, len(snapshot.Overrides))
	for capability := range snapshot.Overrides {
		capabilities = append(capabilities, capability)
	}
	sort.Strings(capabilities)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAPABILITY\tDECISION")
	for _, capability := range capabilities {
		fmt.Fprintf(w, "%s\t%s\n", capability, snapshot.Overrides[capability])
	}
	return w.Flush()
}

func runPolicyMode(_ *cobra.Command, args []string) error {
	var snapshot policySnapshot
	err := callServer(http.MethodPut, "/v1/mode", map[string]string{"mode": args[0]}, &snapshot)
	if err != nil {
		return err
	}
	fmt.Printf("mode: %s\n", snapshot.Mode)
	return nil
}
