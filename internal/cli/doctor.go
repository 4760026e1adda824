package cli

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tokenwarden/tokenwarden/internal/config"
	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/models"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose system and configuration issues",
	Long: `Perform a comprehensive system diagnostic for TokenWarden.

This command checks:
- System information (OS, Go version, etc.)
- Config and database availability
- Encryption key and refresh client credentials
- Recommendations for fixes

Example:
  tokenwarden doctor`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting system diagnostic...")
	}

	diagnostics := DoctorReport{
		Timestamp: time.Now().UTC(),
		Checks:    []DoctorCheck{},
	}

	diagnostics.Checks = append(diagnostics.Checks, collectSystemInfo()...)
	diagnostics.Checks = append(diagnostics.Checks, checkDependencies()...)
	diagnostics.Checks = append(diagnostics.Checks, checkConfiguration()...)

	diagnostics.Recommendations = generateRecommendations(diagnostics.Checks)

	return outputDoctorReport(diagnostics)
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp       time.Time     `json:"timestamp"`
	Checks          []DoctorCheck `json:"checks"`
	Recommendations []string      `json:"recommendations"`
}

// DoctorCheck represents a single diagnostic check
type DoctorCheck struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Severity    string `json:"severity,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

func collectSystemInfo() []DoctorCheck {
	checks := []DoctorCheck{}

	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	workingDir := "unknown"
	if wd, err := os.Getwd(); err == nil {
		workingDir = wd
	}

	checks = append(checks, DoctorCheck{
		Category: "System",
		Name:     "Operating System",
		Status:   "OK",
		Message:  fmt.Sprintf("OS: %s (%s)", runtime.GOOS, runtime.GOARCH),
	})

	checks = append(checks, DoctorCheck{
		Category: "System",
		Name:     "Go Version",
		Status:   "OK",
		Message:  fmt.Sprintf("Go: %s (CPUs: %d)", runtime.Version(), runtime.NumCPU()),
	})

	checks = append(checks, DoctorCheck{
		Category: "System",
		Name:     "User",
		Status:   "OK",
		Message:  fmt.Sprintf("User: %s", username),
	})

	checks = append(checks, DoctorCheck{
		Category: "System",
		Name:     "Working Directory",
		Status:   "OK",
		Message:  fmt.Sprintf("Directory: %s", workingDir),
	})

	return checks
}

func checkDependencies() []DoctorCheck {
	checks := []DoctorCheck{}

	checks = append(checks, checkConfigFile())
	checks = append(checks, checkDatabaseFile())

	return checks
}

func checkConfigFile() DoctorCheck {
	check := DoctorCheck{
		Category: "Dependencies",
		Name:     "Config File",
	}

	loader := config.NewLoader(globalFlags.Config)
	_, err := loader.Load()
	if err != nil {
		check.Status = "FAIL"
		check.Message = fmt.Sprintf("Config file not found or invalid: %v", err)
		check.Severity = "high"
		check.Remediation = "Create a valid config.yaml file or specify --config flag"
		return check
	}

	check.Status = "OK"
	check.Message = fmt.Sprintf("Config file found: %s", globalFlags.Config)
	return check
}

func checkDatabaseFile() DoctorCheck {
	check := DoctorCheck{
		Category: "Dependencies",
		Name:     "Database File",
	}

	dbDir := filepath.Dir(globalFlags.DBPath)
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		check.Status = "WARN"
		check.Message = fmt.Sprintf("Database directory does not exist: %s", dbDir)
		check.Severity = "medium"
		check.Remediation = "The database will be created automatically when starting the server"
		return check
	}

	check.Status = "OK"
	check.Message = fmt.Sprintf("Database path: %s", globalFlags.DBPath)
	return check
}

func checkConfiguration() []DoctorCheck {
	checks := []DoctorCheck{}

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		checks = append(checks, DoctorCheck{
			Category:    "Configuration",
			Name:        "Config Load",
			Status:      "FAIL",
			Message:     fmt.Sprintf("Failed to load config: %v", err),
			Severity:    "high",
			Remediation: "Check config.yaml syntax and file permissions",
		})
		return checks
	}

	if _, err := crypto.NewCodecFromHex(cfg.Encryption.Key); err != nil {
		checks = append(checks, DoctorCheck{
			Category:    "Configuration",
			Name:        "Encryption Key",
			Status:      "FAIL",
			Message:     fmt.Sprintf("Encryption key is unusable: %v", err),
			Severity:    "high",
			Remediation: "Set encryption.key to a hex-encoded 32-byte key (64 hex characters)",
		})
	} else {
		checks = append(checks, DoctorCheck{
			Category: "Configuration",
			Name:     "Encryption Key",
			Status:   "OK",
			Message:  "Encryption key is valid",
		})
	}

	if cfg.Server.HTTPPort == 0 {
		checks = append(checks, DoctorCheck{
			Category:    "Configuration",
			Name:        "Server Port",
			Status:      "WARN",
			Message:     "Server port not configured, using default",
			Severity:    "low",
			Remediation: "Set server.http_port in config.yaml",
		})
	}

	if len(cfg.Refresh.Platforms) == 0 {
		checks = append(checks, DoctorCheck{
			Category:    "Configuration",
			Name:        "Refresh Platforms",
			Status:      "WARN",
			Message:     "No refresh client credentials configured",
			Severity:    "medium",
			Remediation: "Add refresh.platforms entries so access tokens can be refreshed",
		})
	} else {
		for name := range cfg.Refresh.Platforms {
			if !models.Platform(name).IsKnown() {
				checks = append(checks, DoctorCheck{
					Category:    "Configuration",
					Name:        "Refresh Platforms",
					Status:      "FAIL",
					Message:     fmt.Sprintf("Unknown platform in refresh.platforms: %s", name),
					Severity:    "high",
					Remediation: "Use one of: youtube, facebook, linkedin, openai",
				})
			}
		}
		checks = append(checks, DoctorCheck{
			Category: "Configuration",
			Name:     "Refresh Platforms",
			Status:   "OK",
			Message:  fmt.Sprintf("%d platform(s) configured for refresh", len(cfg.Refresh.Platforms)),
		})
	}

	if !cfg.Scanner.Enabled {
		checks = append(checks, DoctorCheck{
			Category:    "Configuration",
			Name:        "Scanner",
			Status:      "WARN",
			Message:     "Background scanner is disabled",
			Severity:    "medium",
			Remediation: "Enable scanner.enabled so expired integrations are disconnected automatically",
		})
	}

	return checks
}

func generateRecommendations(checks []DoctorCheck) []string {
	recommendations := []string{}

	failCount := 0
	warnCount := 0

	for _, check := range checks {
		if check.Status == "FAIL" {
			failCount++
			if check.Remediation != "" {
				recommendations = append(recommendations, fmt.Sprintf("[%s] %s: %s", check.Category, check.Name, check.Remediation))
			}
		}
		if check.Status == "WARN" {
			warnCount++
		}
	}

	if failCount == 0 && warnCount == 0 {
		recommendations = append(recommendations, "System is healthy. No recommendations needed.")
	} else if failCount > 0 {
		recommendations = append(recommendations, fmt.Sprintf("Found %d critical issue(s) and %d warning(s). Please address the critical issues first.", failCount, warnCount))
	}

	return recommendations
}

func outputDoctorReport(report DoctorReport) error {
	if globalFlags.JSON {
		return outputDoctorReportJSON(report)
	}
	return outputDoctorReportTable(report)
}

func outputDoctorReportJSON(report DoctorReport) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func outputDoctorReportTable(report DoctorReport) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Println("=== TokenWarden Doctor Report ===")
	fmt.Printf("Generated: %s\n\n", report.Timestamp.Format(time.RFC3339))

	for _, category := range []string{"System", "Dependencies", "Configuration"} {
		fmt.Printf("--- %s ---\n", category)
		for _, check := range report.Checks {
			if check.Category != category {
				continue
			}
			statusIcon := "✓"
			if check.Status == "FAIL" {
				statusIcon = "✗"
			} else if check.Status == "WARN" {
				statusIcon = "!"
			}
			fmt.Fprintf(w, "%s %s: %s\n", statusIcon, check.Name, check.Message)
		}
		if err := w.Flush(); err != nil {
			log.Printf("Error flushing tabwriter: %v", err)
		}
		fmt.Println()
	}

	fmt.Println("--- Recommendations ---")
	if len(report.Recommendations) > 0 {
		for _, rec := range report.Recommendations {
			fmt.Printf("• %s\n", rec)
		}
	} else {
		fmt.Println("No recommendations.")
	}

	return nil
}
