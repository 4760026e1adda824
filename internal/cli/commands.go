package cli

import (
	"fmt"
	"os"
	"sync"
)

var initOnce sync.Once

// InitCLI wires the root command and its persistent flags. Subcommands
// attach themselves via their init functions, so this only needs to run
// once per process.
func InitCLI() {
	initOnce.Do(InitRoot)
}

// ExecuteWithErrorCode runs the root command against args and maps the
// outcome to a process exit code.
func ExecuteWithErrorCode(args []string) int {
	RootCmd.SetArgs(args)

	if err := RootCmd.Execute(); err != nil {
		if globalFlags.Verbose {
			fmt.Fprintf(os.Stderr, "tokenwarden: %v\n", err)
		}
		return 1
	}

	return 0
}
