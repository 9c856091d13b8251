package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"georesolve/pkg/bootstrap"
	"georesolve/pkg/logging"
	"georesolve/pkg/model"
	"georesolve/pkg/util/ipcodec"
	"georesolve/pkg/util/workers"
)

// bulkSummary counts outcomes of a bulk run
type bulkSummary struct {
	Processed int
	Found     int64
	NotFound  int64
	Errors    int64
}

func bulkCmd() *cobra.Command {
	var (
		inputFile  string
		outputFile string
		workerN    int
		rateLimit  float64
	)

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Resolve a list of IPs (one per line) to JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Component("bulk")

			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			input := cmd.InOrStdin()
			if inputFile != "" {
				f, err := os.Open(inputFile)
				if err != nil {
					return fmt.Errorf("failed to open input file: %w", err)
				}
				defer f.Close()
				input = f
				log.Info().Str("path", inputFile).Msg("Reading input")
			} else {
				log.Info().Msg("Reading from stdin (one IP per line)")
			}

			output := cmd.OutOrStdout()
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				output = f
			}

			ips, err := readIPs(input)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			log.Info().Int("ips", len(ips)).Int("workers", workerN).Msg("Processing")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			w := bufio.NewWriter(output)
			sum, err := runBulk(ctx, app, ips, workers.Config{Workers: workerN, RateLimit: rateLimit}, w)
			if flushErr := w.Flush(); err == nil {
				err = flushErr
			}
			if err != nil {
				return err
			}

			log.Info().
				Int("processed", sum.Processed).
				Int64("found", sum.Found).
				Int64("not_found", sum.NotFound).
				Int64("errors", sum.Errors).
				Msg("Bulk lookup complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&inputFile, "input", "", "Input file (one IP per line, default: stdin)")
	cmd.Flags().StringVar(&outputFile, "output", "", "Output file (JSONL format, default: stdout)")
	cmd.Flags().IntVar(&workerN, "workers", 10, "Number of concurrent workers")
	cmd.Flags().Float64Var(&rateLimit, "rate", 0, "Maximum lookups per second (0 = unlimited)")
	return cmd
}

// readIPs returns the non-empty, non-comment lines of r
func readIPs(r io.Reader) ([]string, error) {
	var ips []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ips = append(ips, line)
	}
	return ips, scanner.Err()
}

// runBulk resolves ips concurrently and writes one JSON line per input,
// in input order
func runBulk(ctx context.Context, app *bootstrap.App, ips []string, cfg workers.Config, w io.Writer) (bulkSummary, error) {
	var found, notFound, failed atomic.Int64

	results, errs := workers.Map(ctx, cfg, ips, func(_ context.Context, s string) (*model.Record, error) {
		ip, err := ipcodec.ParseIP(s)
		if err != nil {
			failed.Add(1)
			return nil, model.ErrInvalidIP
		}
		rec, ok := app.Resolver.Resolve(ip)
		if !ok {
			notFound.Add(1)
			return nil, model.ErrNotFound
		}
		found.Add(1)
		return rec, nil
	})

	enc := json.NewEncoder(w)
	for i, rec := range results {
		var v any = rec
		if errs[i] != nil {
			msg := errs[i].Error()
			if errors.Is(errs[i], model.ErrNotFound) {
				msg = "not found"
			}
			v = map[string]string{"ip": ips[i], "error": msg}
		}
		if err := enc.Encode(v); err != nil {
			return bulkSummary{}, fmt.Errorf("failed to write result: %w", err)
		}
	}

	return bulkSummary{
		Processed: len(ips),
		Found:     found.Load(),
		NotFound:  notFound.Load(),
		Errors:    failed.Load(),
	}, nil
}
