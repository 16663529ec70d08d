package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/genopipe/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

const usageText = `
genopipe - orchestration engine for staged genomic analysis pipelines.

Usage:
  genopipe setup [options] [MANIFEST]   Acquire every resource bundle the manifest declares.
  genopipe run   [options] [MANIFEST]   Preflight and execute the full stage chain.

Arguments:
  MANIFEST
    Path to a pipeline .hcl file or a directory containing them.
    Relative paths resolve against the workspace root. Default: pipelines

Options:
`

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	printUsage := func(fs *flag.FlagSet) {
		fmt.Fprint(output, usageText)
		fs.PrintDefaults()
	}

	if len(args) == 0 {
		printUsage(newFlagSet(output))
		return nil, true, nil
	}

	command := args[0]
	switch command {
	case "help", "-h", "--help":
		printUsage(newFlagSet(output))
		return nil, true, nil
	case app.CommandSetup, app.CommandRun:
	default:
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q; expected 'setup' or 'run'", command)}
	}

	flagSet := newFlagSet(output)
	flagSet.Usage = func() { printUsage(flagSet) }

	rootFlag := flagSet.String("root", ".", "Directory to start workspace resolution from.")
	forceFlag := flagSet.Bool("force", false, "Re-acquire bundles even when completion markers exist (setup only).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	manifestPath := "pipelines"
	if flagSet.NArg() > 0 {
		manifestPath = flagSet.Arg(0)
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *forceFlag && command != app.CommandSetup {
		return nil, false, &ExitError{Code: 2, Message: "-force is only valid with the setup command"}
	}

	config, err := app.NewConfig(app.Config{
		Command:       command,
		ManifestPath:  manifestPath,
		InvocationDir: *rootFlag,
		Force:         *forceFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}

func newFlagSet(output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("genopipe", flag.ContinueOnError)
	fs.SetOutput(output)
	return fs
}
