package main

import (
	"fmt"
	"io"
	"os"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "dataset":
		return runDataset(cmdArgs, stderr)
	case "sprites":
		return runSprites(cmdArgs, stderr)
	case "all":
		return runAll(cmdArgs, stderr)
	case "help", "-h", "--help":
		printUsage(stderr)
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return ExitInvalidArgs
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: harvester <command> [options]

Commands:
  dataset   Build the species dataset from PokeAPI and write it as JSON
  sprites   Download sprites for every record of an existing dataset
  all       Build the dataset, then download its sprites

Run 'harvester <command> -h' for command-specific help.`)
}
