package main

import (
	"encoding/json"
	"io"
	"net"
	"path/filepath"
	"strings"

	"github.com/loykin/vitesrv/internal/config"
	"github.com/loykin/vitesrv/pkg/client"
)

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// absCwd resolves the optional cwd argument on the client side, since the
// daemon runs in a different working directory.
func absCwd(args []string) (string, error) {
	cwd := "."
	if len(args) > 0 && args[0] != "" {
		cwd = args[0]
	}
	return filepath.Abs(cwd)
}

func defaultAPIURL() string { return client.DefaultBaseURL }

// apiURLFromConfig derives the client URL from the daemon's listen address.
// Wildcard hosts are replaced with loopback.
func apiURLFromConfig(c *config.Config) string {
	host, port, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return defaultAPIURL()
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + strings.TrimRight(c.Server.BasePath, "/")
}
