package main

import (
	"bytes"
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/nao1215/cookieaudit/internal/config"
	"github.com/nao1215/cookieaudit/internal/reference"
)

//go:embed templates/cookieaudit.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// initParams fill the configuration template.
type initParams struct {
	Sites []string
	Skip  []string
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a cookieaudit configuration file",
		Long: `Init writes a .cookieaudit configuration file holding the defaults shared
by every audited site and, optionally, empty sections for the sites you
plan to audit. The file is checked with the same rules the scanner uses
before it is written.

Examples:
  # Create .cookieaudit in the current directory
  cookieaudit init

  # Seed sections for two sites
  cookieaudit init --site shop.example.com --site https://blog.example.com/

  # Never source-scan a large custom component
  cookieaudit init --skip my-huge-builder

  # Write elsewhere, replacing an existing file
  cookieaudit init -o myconfig.yaml -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.Flags().StringSlice("site", nil,
		"Host or URL of a site to add a section for (repeatable)")
	cmd.Flags().StringSlice("skip", nil,
		"Component slug to add to the default skip list (repeatable)")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	sites, err := cmd.Flags().GetStringSlice("site")
	if err != nil {
		return err
	}
	skip, err := cmd.Flags().GetStringSlice("skip")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	params := initParams{}
	for _, s := range sites {
		host, err := siteHost(s)
		if err != nil {
			return err
		}
		if !slices.Contains(params.Sites, host) {
			params.Sites = append(params.Sites, host)
		}
	}

	out := cmd.OutOrStdout()
	builtin := reference.Default().SkipList()
	for _, s := range skip {
		slug := strings.TrimSpace(s)
		if slug == "" || slices.Contains(params.Skip, slug) {
			continue
		}
		if slices.Contains(builtin, slug) {
			fmt.Fprintf(out, "%s is already on the built-in skip list\n", slug)
			continue
		}
		params.Skip = append(params.Skip, slug)
	}

	content, err := renderConfig(params)
	if err != nil {
		return err
	}
	cf, err := config.Parse(content, outputPath)
	if err != nil {
		return fmt.Errorf("generated configuration is invalid: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintf(out, "  sites:           %d\n", len(cf.Sites))
	fmt.Fprintf(out, "  skip components: %d custom, %d built-in\n", len(cf.Defaults.SkipComponents), len(builtin))
	if len(cf.Sites) == 0 {
		fmt.Fprintln(out, "\nAdd a section under \"sites\" for a host that needs its own headers,")
		fmt.Fprintln(out, "user agent, page cap or tracking domains.")
	}
	return nil
}

// renderConfig fills the embedded template.
func renderConfig(p initParams) ([]byte, error) {
	raw, err := configTemplate.ReadFile("templates/cookieaudit.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read config template: %w", err)
	}
	tmpl, err := template.New("config").Funcs(template.FuncMap{
		"quote": strconv.Quote,
		"list": func(items []string) string {
			if len(items) == 0 {
				return " []"
			}
			var b strings.Builder
			for _, it := range items {
				b.WriteString("\n    - ")
				b.WriteString(strconv.Quote(it))
			}
			return b.String()
		},
	}).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("failed to render config template: %w", err)
	}
	return buf.Bytes(), nil
}

// siteHost reduces a host or URL to the lower-case host name used as a
// key under "sites".
func siteHost(site string) (string, error) {
	s := strings.TrimSpace(site)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid site %q: expected a host name or URL", site)
	}
	return strings.ToLower(u.Hostname()), nil
}
