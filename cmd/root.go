package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

const appName = "llm-gateway"

// version is overridden at build time with -ldflags "-X llm-gateway/cmd.version=...".
var version = "dev"

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand(os.Stdout).Run(ctx, append([]string{appName}, args...))
}

func newRootCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    appName,
		Usage:   "OpenAI-compatible gateway routing chat completions to Gemini, OpenAI and Anthropic",
		Version: version,
		Writer:  out,
		Commands: []*cli.Command{
			serveCommand(),
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintf(cmd.Root().Writer, "%s %s\n", appName, version)
					return err
				},
			},
		},
	}
}
