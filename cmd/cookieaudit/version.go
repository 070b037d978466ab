package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/nao1215/cookieaudit/internal/export"
	"github.com/nao1215/cookieaudit/internal/reference"
	"github.com/nao1215/cookieaudit/internal/report"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = ""
	commit  = ""
	date    = ""
)

// buildInfo is what `cookieaudit version` reports. ScannerVersion is the
// value written into exported audit documents.
type buildInfo struct {
	Version          string `json:"version"`
	Commit           string `json:"commit"`
	Built            string `json:"built"`
	GoVersion        string `json:"goVersion"`
	ScanSource       string `json:"scanSource"`
	ReferenceVersion string `json:"referenceVersion"`
	KnownComponents  int    `json:"knownComponents"`
}

func currentBuildInfo() buildInfo {
	ref := reference.Default()
	return buildInfo{
		Version:          getVersion(),
		Commit:           getCommit(),
		Built:            getDate(),
		GoVersion:        runtime.Version(),
		ScanSource:       export.ScanSource,
		ReferenceVersion: orDefault(ref.Version, "none"),
		KnownComponents:  len(ref.ComponentIDs()),
	}
}

// getVersion prefers the ldflags value, then the module version.
func getVersion() string {
	if version != "" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "(devel)"
}

// getCommit returns the short VCS revision.
func getCommit() string {
	if commit != "" {
		return commit
	}
	rev := vcsSetting("vcs.revision")
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if vcsSetting("vcs.modified") == "true" {
		rev += "-dirty"
	}
	return rev
}

func getDate() string {
	if date != "" {
		return date
	}
	return vcsSetting("vcs.time")
}

func vcsSetting(key string) string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == key {
				return s.Value
			}
		}
	}
	if key == "vcs.modified" {
		return ""
	}
	return "unknown"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and reference database information",
		Long: `Version prints the cookieaudit build and the version of the embedded
known-service database, which decides how cookies are classified. Include
both when reporting a misclassified cookie.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			info := currentBuildInfo()
			out := cmd.OutOrStdout()
			if asJSON {
				_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(info)
				return err
			}
			fmt.Fprintf(out, "cookieaudit version %s\n", info.Version)
			fmt.Fprintf(out, "  commit:    %s\n", info.Commit)
			fmt.Fprintf(out, "  built:     %s\n", info.Built)
			fmt.Fprintf(out, "  go:        %s\n", info.GoVersion)
			fmt.Fprintf(out, "  reference: %s (%d known components)\n", info.ReferenceVersion, info.KnownComponents)
			return nil
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Print version information as JSON")
	return cmd
}
