package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func providersCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and whether they can be opened",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			statuses := app.Backends()
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tPRIORITY\tENABLED\tSTATUS")
			for _, st := range statuses {
				status := "available"
				switch {
				case !st.Enabled:
					status = "disabled"
				case !st.Available:
					status = "unavailable"
				case st.Degraded:
					status = "degraded"
				}
				if st.Error != "" {
					status += ": " + st.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", st.Name, st.Type, st.Priority, st.Enabled, status)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
