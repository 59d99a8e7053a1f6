package vite

import (
	"path/filepath"
	"reflect"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestDevArgsOrder(t *testing.T) {
	base := []string{"vite"}
	tests := []struct {
		name string
		in   DevInput
		want []string
	}{
		{"bare", DevInput{Cwd: "/app"}, []string{"vite"}},
		{"all", DevInput{Cwd: "/app", Open: ptr(true), Host: ptr("0.0.0.0"), Port: ptr(3000)},
			[]string{"vite", "--port", "3000", "--host", "0.0.0.0", "--open"}},
		{"open false", DevInput{Cwd: "/app", Open: ptr(false)}, []string{"vite"}},
		{"empty host", DevInput{Cwd: "/app", Host: ptr("")}, []string{"vite"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := devArgs(base, tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("devArgs = %v, want %v", got, tt.want)
			}
		})
	}
	if len(base) != 1 {
		t.Fatal("base args mutated")
	}
}

func TestPreviewAndBuildArgs(t *testing.T) {
	base := []string{"vite"}
	if got := previewArgs(base, PreviewInput{Cwd: "/app", Port: ptr(4173)}); !reflect.DeepEqual(got, []string{"vite", "preview", "--port", "4173"}) {
		t.Fatalf("previewArgs = %v", got)
	}
	if got := buildArgs(base, BuildInput{Cwd: "/app"}); !reflect.DeepEqual(got, []string{"vite", "build"}) {
		t.Fatalf("buildArgs = %v", got)
	}
	got := buildArgs(base, BuildInput{Cwd: "/app", Mode: ptr("staging"), OutDir: ptr("out")})
	if !reflect.DeepEqual(got, []string{"vite", "build", "--outDir", "out", "--mode", "staging"}) {
		t.Fatalf("buildArgs = %v", got)
	}
}

func TestResolveOutDir(t *testing.T) {
	requireUnix(t)
	cwd := filepath.Join(string(filepath.Separator), "srv", "app")
	abs := filepath.Join(string(filepath.Separator), "var", "www")
	tests := []struct {
		name   string
		outDir *string
		want   string
	}{
		{"default", nil, filepath.Join(cwd, "dist")},
		{"empty uses default", ptr(""), filepath.Join(cwd, "dist")},
		{"relative", ptr("build/web"), filepath.Join(cwd, "build", "web")},
		{"parent", ptr("../public"), filepath.Join(string(filepath.Separator), "srv", "public")},
		{"absolute", &abs, abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveOutDir(cwd, tt.outDir, "dist"); got != tt.want {
				t.Fatalf("resolveOutDir = %q, want %q", got, tt.want)
			}
		})
	}
}
