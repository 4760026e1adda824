package main

import (
	"os"

	"github.com/tokenwarden/tokenwarden/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
