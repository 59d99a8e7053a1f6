package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/loykin/vitesrv/internal/config"
	"github.com/loykin/vitesrv/pkg/client"
)

// command carries what every client subcommand needs
type command struct {
	flags *GlobalFlags
	out   io.Writer
}

// client builds an API client from the global flags, falling back to the
// listen address and base path of --config.
func (c command) client() (*client.Client, error) {
	url := c.flags.APIUrl
	if url == "" {
		if c.flags.ConfigPath != "" {
			cfg, err := config.Load(c.flags.ConfigPath)
			if err != nil {
				return nil, fmt.Errorf("error loading config: %w", err)
			}
			url = apiURLFromConfig(cfg)
		} else {
			url = defaultAPIURL()
		}
	}
	return client.New(client.Config{BaseURL: url, Timeout: c.flags.APITimeout}), nil
}

func (c command) run(fn func(ctx context.Context, cl *client.Client) (any, error)) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	res, err := fn(context.Background(), cl)
	if err != nil {
		return err
	}
	return printJSON(c.out, res)
}

// DevFlags holds flags for the dev command
type DevFlags struct {
	Port int
	Host string
	Open bool
}

func createDevCommand(c command) *cobra.Command {
	f := &DevFlags{}
	cmd := &cobra.Command{
		Use:   "dev [cwd]",
		Short: "Start Vite dev server",
		Long: `Start a dev server in cwd (default: current directory) and print its
serverId, url and pid once it is ready.

Examples:
  vitesrv dev ./web
  vitesrv dev ./web -p 3000 -h 0.0.0.0 --open`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := absCwd(args)
			if err != nil {
				return err
			}
			req := client.DevRequest{Cwd: cwd}
			if cmd.Flags().Changed("port") {
				req.Port = &f.Port
			}
			if cmd.Flags().Changed("host") {
				req.Host = &f.Host
			}
			if cmd.Flags().Changed("open") {
				req.Open = &f.Open
			}
			return c.run(func(ctx context.Context, cl *client.Client) (any, error) {
				return cl.Dev(ctx, req)
			})
		},
	}
	cmd.Flags().IntVarP(&f.Port, "port", "p", 0, "port to listen on")
	cmd.Flags().StringVarP(&f.Host, "host", "h", "", "host to bind")
	cmd.Flags().BoolVar(&f.Open, "open", false, "open the browser on start")
	return cmd
}

// BuildFlags holds flags for the build command
type BuildFlags struct {
	OutDir string
	Mode   string
}

func createBuildCommand(c command) *cobra.Command {
	f := &BuildFlags{}
	cmd := &cobra.Command{
		Use:   "build [cwd]",
		Short: "Build for production",
		Long: `Run a production build in cwd and wait for it to finish.

Examples:
  vitesrv build ./web
  vitesrv build ./web -o out -m staging`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := absCwd(args)
			if err != nil {
				return err
			}
			req := client.BuildRequest{Cwd: cwd}
			if cmd.Flags().Changed("outDir") {
				req.OutDir = &f.OutDir
			}
			if cmd.Flags().Changed("mode") {
				req.Mode = &f.Mode
			}
			return c.run(func(ctx context.Context, cl *client.Client) (any, error) {
				return cl.Build(ctx, req)
			})
		},
	}
	cmd.Flags().StringVarP(&f.OutDir, "outDir", "o", "", "output directory, relative to cwd")
	cmd.Flags().StringVarP(&f.Mode, "mode", "m", "", "build mode")
	return cmd
}

func createPreviewCommand(c command) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "preview [cwd]",
		Short: "Preview production build",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := absCwd(args)
			if err != nil {
				return err
			}
			req := client.PreviewRequest{Cwd: cwd}
			if cmd.Flags().Changed("port") {
				req.Port = &port
			}
			return c.run(func(ctx context.Context, cl *client.Client) (any, error) {
				return cl.Preview(ctx, req)
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on")
	return cmd
}

func createStopCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <serverId>",
		Short: "Stop a running Vite server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, cl *client.Client) (any, error) {
				ok, err := cl.Stop(ctx, args[0])
				return map[string]bool{"success": ok}, err
			})
		},
	}
}

func createListCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List running Vite servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, cl *client.Client) (any, error) {
				servers, err := cl.List(ctx)
				if servers == nil {
					servers = []client.Server{}
				}
				return map[string]any{"servers": servers}, err
			})
		},
	}
}

func createStatusCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "status <serverId>",
		Short: "Show a running server with recent output and resource usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, cl *client.Client) (any, error) {
				return cl.Status(ctx, args[0])
			})
		},
	}
}

func createProceduresCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "procedures",
		Short: "List the procedures served by the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, cl *client.Client) (any, error) {
				return cl.Procedures(ctx)
			})
		},
	}
}
