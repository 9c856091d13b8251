package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the lookup cache",
	}

	var warm []string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache settings and statistics",
		Long:  "Show cache settings and statistics. The cache lives in memory, so --warm resolves addresses first to exercise it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			for _, s := range warm {
				if _, _, err := app.Resolver.ResolveString(s); err != nil {
					return err
				}
			}

			settings := app.Config.CacheSettings()
			st := app.Resolver.CacheStats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Enabled:            %t\n", settings.Enabled)
			fmt.Fprintf(out, "Backend:            %s\n", settings.Backend)
			fmt.Fprintf(out, "TTL:                %s\n", settings.TTL)
			fmt.Fprintf(out, "Size:               %d / %d\n", st.Size, st.MaxSize)
			fmt.Fprintf(out, "Hits:               %d\n", st.Hits)
			fmt.Fprintf(out, "Misses:             %d\n", st.Misses)
			fmt.Fprintf(out, "Hit Rate:           %.1f%%\n", st.HitRate()*100)
			return nil
		},
	}
	stats.Flags().StringSliceVar(&warm, "warm", nil, "Resolve these IPs before reporting")

	cmd.AddCommand(stats)
	return cmd
}
