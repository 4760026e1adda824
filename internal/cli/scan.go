package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tokenwarden/tokenwarden/internal/config"
	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/refresh"
	"github.com/tokenwarden/tokenwarden/internal/scanner"
	"github.com/tokenwarden/tokenwarden/internal/scheduler"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a one-shot credential scan",
	Long: `Scan stored credentials and report which ones need attention.

Without --apply the scan only reports: which access tokens should be
refreshed, which integrations should be warned, and which should be
disconnected. With --apply those actions are executed.

Example:
  tokenwarden scan --platform youtube
  tokenwarden scan --apply`,
	RunE: runScan,
}

var scanFlags struct {
	Platform string
	Apply    bool
}

func init() {
	scanCmd.Flags().StringVar(&scanFlags.Platform, "platform", "", "Scan a single platform (default: all)")
	scanCmd.Flags().BoolVar(&scanFlags.Apply, "apply", false, "Execute disconnects and refreshes instead of reporting")

	RootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	codec, err := crypto.NewCodecFromHex(cfg.Encryption.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize credential codec: %w", err)
	}

	dbPath := cfg.Storage.Path
	if globalFlags.DBPath != "" {
		dbPath = globalFlags.DBPath
	}
	sqliteStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open SQLite store: %w", err)
	}
	defer sqliteStore.Close()

	policy := scanner.Policy{
		AccessRefreshDays:     cfg.Scanner.AccessRefreshDays,
		RefreshDisconnectDays: cfg.Scanner.RefreshDisconnectDays,
		RefreshWarningDays:    cfg.Scanner.RefreshWarningDays,
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid scanner thresholds: %w", err)
	}
	sc := scanner.New(sqliteStore, codec, policy, scanner.WithWorkers(cfg.Scanner.Workers))

	var platforms []models.Platform
	if scanFlags.Platform != "" {
		p := models.Platform(scanFlags.Platform)
		if !p.IsKnown() {
			return fmt.Errorf("unknown platform: %s", scanFlags.Platform)
		}
		platforms = []models.Platform{p}
	}

	ctx := context.Background()
	now := time.Now().UTC()

	var results []*models.ScanResult
	if scanFlags.Apply {
		executor := refresh.New(sqliteStore, codec, buildRefreshPlatforms(cfg),
			refresh.WithTimeout(cfg.Refresh.Timeout),
			refresh.WithWorkers(cfg.Refresh.Workers))
		pipeline := scheduler.NewPipeline(scheduler.PipelineDeps{
			Scanner:        sc,
			Executor:       executor,
			Store:          sqliteStore,
			AutoDisconnect: cfg.Scanner.AutoDisconnect,
		})
		results, err = pipeline.RunAll(ctx, platforms, now)
	} else {
		results, err = sc.ScanAll(ctx, platforms, now)
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	return outputScanResults(results)
}

func outputScanResults(results []*models.ScanResult) error {
	if globalFlags.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tREFRESH\tWARN\tDISCONNECT\tSKIPPED")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
			r.Platform,
			len(r.NeedsAccessRefresh),
			len(r.NeedsDisconnectWarning),
			len(r.ShouldAutoDisconnect),
			r.SkippedCredentials,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if globalFlags.Verbose {
		for _, r := range results {
			for _, d := range r.ShouldAutoDisconnect {
				fmt.Printf("disconnect %s (%s): %s\n", d.CredentialID, d.Platform, d.Reason)
			}
			for _, warn := range r.NeedsDisconnectWarning {
				fmt.Printf("warn %s (%s): %d day(s) left\n", warn.CredentialID, warn.Platform, warn.RefreshExpiresInDays)
			}
			for _, e := range r.NeedsAccessRefresh {
				fmt.Printf("refresh %s (%s)\n", e.CredentialID, e.Platform)
			}
		}
	}

	return nil
}
