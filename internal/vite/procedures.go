package vite

import "github.com/loykin/vitesrv/internal/procedure"

// Procedures exposes the service operations as dispatcher entries.
func Procedures(s *Service) []procedure.Procedure {
	return []procedure.Procedure{
		procedure.New([]string{"vite", "dev"}, procedure.Meta{
			Description: "Start Vite dev server",
			Args:        []string{"cwd"},
			Shorts:      map[string]string{"port": "p", "host": "h"},
			Output:      "json",
		}, s.StartDev),
		procedure.New([]string{"vite", "build"}, procedure.Meta{
			Description: "Build for production",
			Args:        []string{"cwd"},
			Shorts:      map[string]string{"outDir": "o", "mode": "m"},
			Output:      "json",
		}, s.Build),
		procedure.New([]string{"vite", "preview"}, procedure.Meta{
			Description: "Preview production build",
			Args:        []string{"cwd"},
			Shorts:      map[string]string{"port": "p"},
			Output:      "json",
		}, s.Preview),
		procedure.New([]string{"vite", "stop"}, procedure.Meta{
			Description: "Stop a running Vite server",
			Args:        []string{"serverId"},
			Shorts:      map[string]string{},
			Output:      "json",
		}, s.Stop),
		procedure.New([]string{"vite", "list"}, procedure.Meta{
			Description: "List running Vite servers",
			Args:        []string{},
			Shorts:      map[string]string{},
			Output:      "json",
		}, s.List),
		procedure.New([]string{"vite", "status"}, procedure.Meta{
			Description: "Show a running Vite server with recent output and resource usage",
			Args:        []string{"serverId"},
			Shorts:      map[string]string{},
			Output:      "json",
		}, s.Status),
	}
}
