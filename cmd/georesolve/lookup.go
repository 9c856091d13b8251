package main

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"georesolve/pkg/bootstrap"
	"georesolve/pkg/model"
	"georesolve/pkg/resolver"
	"georesolve/pkg/util/ipcodec"
)

func lookupCmd() *cobra.Command {
	var (
		backend    string
		explain    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "lookup <ip>...",
		Short: "Look up one or more IP addresses",
		Example: `  georesolve lookup 8.8.8.8
  georesolve lookup --explain 10.1.2.3 2001:4860:4860::8888
  georesolve lookup --provider ip2location --json 1.1.1.1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			missing := 0
			for i, arg := range args {
				ip, err := ipcodec.ParseIP(arg)
				if err != nil {
					return fmt.Errorf("%q: %w", arg, model.ErrInvalidIP)
				}

				var (
					rec   *model.Record
					trace *resolver.Trace
				)
				switch {
				case backend != "":
					rec, err = lookupDirect(app, backend, ip)
					if err != nil && !errors.Is(err, model.ErrNotFound) {
						return err
					}
				case explain:
					trace = app.Resolver.Explain(ip)
					rec = trace.Record
				default:
					rec, _ = app.Resolver.Resolve(ip)
				}
				if rec == nil {
					missing++
				}

				if jsonOutput {
					if err := writeLookupJSON(out, ip.String(), rec, trace); err != nil {
						return err
					}
					continue
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				printHumanReadable(out, ip.String(), rec)
				if trace != nil {
					printTrace(out, trace)
				}
			}

			if missing == len(args) {
				return fmt.Errorf("no record found for %s", strings.Join(args, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "provider", "", "Query this provider directly, bypassing the matching rules")
	cmd.Flags().BoolVar(&explain, "explain", false, "Show which rules matched and which providers were tried")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON lines")
	return cmd
}

// lookupDirect queries one named backend through the cache
func lookupDirect(app *bootstrap.App, name string, ip netip.Addr) (*model.Record, error) {
	b, err := app.Registry.Get(name)
	if err != nil {
		return nil, err
	}
	if !b.Available() {
		return nil, fmt.Errorf("provider %q: %w", name, model.ErrBackendUnavailable)
	}
	rec, _, err := b.LookupCached(ip)
	return rec, err
}

func writeLookupJSON(w io.Writer, ip string, rec *model.Record, trace *resolver.Trace) error {
	var v any = rec
	switch {
	case trace != nil:
		v = trace
	case rec == nil:
		v = map[string]string{"ip": ip, "error": "not found"}
	}
	return json.NewEncoder(w).Encode(v)
}

func printHumanReadable(w io.Writer, ip string, rec *model.Record) {
	fmt.Fprintf(w, "IP Address:         %s\n", ip)
	if rec == nil {
		fmt.Fprintf(w, "Result:             not found\n")
		return
	}
	if rec.CountryCode != "" {
		fmt.Fprintf(w, "Country:            %s (%s)\n", rec.CountryName, rec.CountryCode)
	}
	if rec.ContinentCode != "" {
		fmt.Fprintf(w, "Continent:          %s (%s)\n", rec.ContinentName, rec.ContinentCode)
	}
	if rec.Subdivision != "" {
		fmt.Fprintf(w, "Region:             %s\n", rec.Subdivision)
	}
	if rec.City != "" {
		fmt.Fprintf(w, "City:               %s\n", rec.City)
	}
	if rec.PostalCode != "" {
		fmt.Fprintf(w, "Postal Code:        %s\n", rec.PostalCode)
	}
	if lat, lon, ok := rec.Coordinates(); ok {
		fmt.Fprintf(w, "Location:           %.4f, %.4f\n", lat, lon)
	}
	if rec.TimeZone != "" {
		fmt.Fprintf(w, "Time Zone:          %s\n", rec.TimeZone)
	}
	if rec.Enriched() {
		fmt.Fprintf(w, "ASN:                AS%d (%s)\n", rec.ASN, rec.Organization)
		fmt.Fprintf(w, "Network:            %s\n", rec.CIDR)
	}
	fmt.Fprintf(w, "Provider:           %s\n", rec.Backend)
}

func printTrace(w io.Writer, trace *resolver.Trace) {
	if len(trace.MatchedRules) > 0 {
		fmt.Fprintf(w, "Matched Rules:      %s\n", strings.Join(trace.MatchedRules, ", "))
	} else {
		fmt.Fprintf(w, "Matched Rules:      none\n")
	}
	if c := trace.Characteristics; c != nil {
		fmt.Fprintf(w, "Characteristics:    country=%s continent=%s asn=%d\n", c.Country, c.Continent, c.ASN)
	}
	for _, a := range trace.Attempts {
		line := fmt.Sprintf("  %-16s %-9s %s", a.Backend, a.Source, a.Result)
		if a.Rule != "" {
			line += " (rule " + a.Rule + ")"
		}
		if a.Error != "" {
			line += ": " + a.Error
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "Cache Hit:          %t\n", trace.CacheHit)
	fmt.Fprintf(w, "Duration:           %s\n", trace.Duration)
}
