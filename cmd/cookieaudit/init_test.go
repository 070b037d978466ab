package main

import (
	"bytes"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/nao1215/cookieaudit/internal/config"
	"github.com/nao1215/cookieaudit/internal/reference"
)

// TestRunInitCmd tests the init command execution.
func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, args ...string) error {
		t.Helper()
		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	t.Run("creates a loadable config file", func(t *testing.T) {
		t.Parallel()
		outputPath := filepath.Join(t.TempDir(), configFileName)

		if err := run(t, "-o", outputPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cf, err := config.LoadConfigFile(outputPath)
		if err != nil {
			t.Fatalf("generated file does not load: %v", err)
		}
		if cf.Sites == nil {
			t.Error("expected non-nil sites map")
		}
	})

	t.Run("fails if file exists without force", func(t *testing.T) {
		t.Parallel()
		outputPath := filepath.Join(t.TempDir(), configFileName)
		if err := os.WriteFile(outputPath, []byte("existing"), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		err := run(t, "-o", outputPath)
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected 'already exists' error, got %v", err)
		}
	})

	t.Run("overwrites file with force flag", func(t *testing.T) {
		t.Parallel()
		outputPath := filepath.Join(t.TempDir(), configFileName)
		if err := os.WriteFile(outputPath, []byte("existing"), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		if err := run(t, "-o", outputPath, "-f"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if string(content) == "existing" {
			t.Error("expected file to be overwritten")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		t.Parallel()
		outputPath := filepath.Join(t.TempDir(), "subdir", "nested", configFileName)

		if err := run(t, "-o", outputPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(outputPath); err != nil {
			t.Errorf("expected config file in nested directory: %v", err)
		}
	})

	t.Run("file has correct permissions", func(t *testing.T) {
		t.Parallel()
		if runtime.GOOS == "windows" {
			t.Skip("skipping permission test on Windows")
		}
		outputPath := filepath.Join(t.TempDir(), configFileName)

		if err := run(t, "-o", outputPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		info, err := os.Stat(outputPath)
		if err != nil {
			t.Fatalf("failed to stat file: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("expected permissions 0600, got %o", perm)
		}
	})
}

func TestRunInitCmdSeeding(t *testing.T) {
	t.Parallel()

	builtin := reference.Default().SkipList()
	if len(builtin) == 0 {
		t.Fatal("reference database has no built-in skip list")
	}

	outputPath := filepath.Join(t.TempDir(), configFileName)
	var out bytes.Buffer
	cmd := NewInitCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"-o", outputPath,
		"--site", "Shop.Example.com",
		"--site", "https://blog.example.com/news/",
		"--site", "shop.example.com",
		"--skip", "my-huge-builder",
		"--skip", builtin[0],
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cf, err := config.LoadConfigFile(outputPath)
	if err != nil {
		t.Fatalf("generated file does not load: %v", err)
	}
	hosts := slices.Sorted(maps.Keys(cf.Sites))
	if want := []string{"blog.example.com", "shop.example.com"}; !slices.Equal(hosts, want) {
		t.Errorf("sites = %v, want %v", hosts, want)
	}
	if want := []string{"my-huge-builder"}; !slices.Equal(cf.Defaults.SkipComponents, want) {
		t.Errorf("skipComponents = %v, want %v", cf.Defaults.SkipComponents, want)
	}
	if !strings.Contains(out.String(), builtin[0]+" is already on the built-in skip list") {
		t.Errorf("output does not mention built-in skip entry: %q", out.String())
	}
	if !strings.Contains(out.String(), "sites:           2") {
		t.Errorf("output does not report two sites: %q", out.String())
	}
}

func TestRunInitCmdInvalidSite(t *testing.T) {
	t.Parallel()

	outputPath := filepath.Join(t.TempDir(), configFileName)
	cmd := NewInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-o", outputPath, "--site", "https://"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid site") {
		t.Fatalf("expected invalid site error, got %v", err)
	}
	if _, err := os.Stat(outputPath); err == nil {
		t.Error("configuration file written for an invalid site")
	}
}

func TestSiteHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"  Example.COM ", "example.com"},
		{"https://shop.example.com/cart?x=1", "shop.example.com"},
		{"http://localhost:8080", "localhost"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := siteHost(tt.in)
			if err != nil {
				t.Fatalf("siteHost(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("siteHost(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderConfigDefaults(t *testing.T) {
	t.Parallel()

	content, err := renderConfig(initParams{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "skipComponents: []") {
		t.Errorf("default skip list not rendered empty:\n%s", content)
	}
	if !strings.Contains(string(content), "# sites:") {
		t.Errorf("commented site example missing:\n%s", content)
	}
	if strings.Contains(string(content), "{{") {
		t.Errorf("unrendered template action:\n%s", content)
	}
}

// TestConfigTemplate tests the embedded config template.
func TestConfigTemplate(t *testing.T) {
	t.Parallel()

	content, err := configTemplate.ReadFile("templates/cookieaudit.yaml")
	if err != nil {
		t.Fatalf("failed to read template: %v", err)
	}
	for _, want := range []string{"defaults:", "sites:", "skipComponents", "extraTrackingDomains", "#"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("expected template to contain %q", want)
		}
	}
}
