package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

// buildRoot creates the root command with all subcommands writing results to out
func buildRoot(out io.Writer) *cobra.Command {
	flags := &GlobalFlags{}
	root := createRootCommand(flags)
	root.SetOut(out)

	cli := command{flags: flags, out: out}
	root.AddCommand(
		createServeCommand(flags),
		createDevCommand(cli),
		createBuildCommand(cli),
		createPreviewCommand(cli),
		createStopCommand(cli),
		createListCommand(cli),
		createStatusCommand(cli),
		createProceduresCommand(cli),
	)
	return root
}

// createRootCommand creates the root command with persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "vitesrv",
		Short: "Remote control for Vite dev, build and preview",
		Long: `vitesrv runs a small daemon that starts, watches and stops Vite processes
and exposes them as JSON procedures over HTTP. The other commands talk to
a running daemon.

Examples:
  vitesrv serve --config vitesrv.toml
  vitesrv dev ./web -p 3000
  vitesrv build ./web -o out -m staging
  vitesrv list
  vitesrv stop vite-1718000000000-1`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon API URL (default from config, or "+defaultAPIURL()+")")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 5*time.Minute, "request timeout")
	return root
}
