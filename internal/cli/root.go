package cli

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	DBPath  string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "tokenwarden",
	Short: "TokenWarden - OAuth Credential Expiration Management",
	Long: `TokenWarden keeps stored OAuth credentials usable. It scans encrypted
credentials for expiring access and refresh tokens, refreshes access tokens
against the provider token endpoints, disconnects integrations whose refresh
token is gone, and warns users before that happens.

Usage:
  tokenwarden [command] [flags]

Available Commands:
  serve         Start the TokenWarden server (main mode)
  scan          Run a one-shot credential scan
  integrations  List and disconnect stored integrations
  doctor        Diagnose system and configuration issues

Flags:
  --config string   Path to configuration file (default "config.yaml")
  --db string       Path to SQLite database (default "./data/tokenwarden.db")
  --verbose         Enable verbose output
  --json            Output in JSON format

Use "tokenwarden [command] --help" for more information about a command.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv("TOKENWARDEN_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	dbPath := os.Getenv("TOKENWARDEN_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/tokenwarden.db"
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DBPath, "db", dbPath, "Path to SQLite database")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of TokenWarden",
	Long:  `All software has versions. This is TokenWarden's`,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

// printVersion prints the version information
func printVersion() {
	info := GetVersionInfo()
	println("TokenWarden Version:", info.Version)
	println("Go Version:", info.GoVersion)
	println("OS/Arch:", info.OS+"/"+info.Arch)
	println("Build Date:", info.BuildDate)
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
	BuildDate string
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		BuildDate: "unknown",
	}
}
