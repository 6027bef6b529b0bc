// Package cloc invokes the external cloc line counter as a subprocess and
// parses its YAML report. No third-party Go package replaces "run an
// external binary and read its output file" — os/exec is the correct and
// only idiomatic choice here; gopkg.in/yaml.v3 parses the report itself.
package cloc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	perr "dex/internal/platform/errors"

	"gopkg.in/yaml.v3"
)

// Language is one language's line-count breakdown from the cloc report
type Language struct {
	Name     string
	Files    int
	Code     int
	Comments int
	Blank    int
}

// reserved report keys that are not languages
var reserved = map[string]bool{"header": true, "SUM": true}

// reportRow mirrors one entry of cloc's --yaml output
type reportRow struct {
	NFiles  int `yaml:"nFiles"`
	Code    int `yaml:"code"`
	Comment int `yaml:"comment"`
	Blank   int `yaml:"blank"`
}

// Run invokes `cloc <path> --yaml --report-file=<path>/cloc.yaml`, returning
// a language breakdown. The binary name/path is configurable (DEX_CLOC_PATH)
// so tests and deployments can point at a specific cloc install.
func Run(ctx context.Context, binary, path string) ([]Language, error) {
	if binary == "" {
		binary = "cloc"
	}
	reportPath := filepath.Join(path, "cloc.yaml")

	cmd := exec.CommandContext(ctx, binary, path, "--yaml", "--report-file="+reportPath)
	if err := cmd.Run(); err != nil {
		if _, lookErr := exec.LookPath(binary); lookErr != nil {
			return nil, perr.DependencyFailure(err, fmt.Sprintf("cloc not on PATH: %v", lookErr))
		}
		// cloc exits non-zero on some warnings; exit code is not load-bearing
		// per spec §6 ("exit code unused") — only the report file's presence is.
	}

	if _, err := os.Stat(reportPath); err != nil {
		return nil, perr.StatisticsUnavailable("cloc produced no report (empty repository)")
	}

	raw, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, perr.TransientIO(err, "reading cloc report")
	}

	var report map[string]reportRow
	if err := yaml.Unmarshal(raw, &report); err != nil {
		return nil, perr.TransientIO(err, "parsing cloc report")
	}

	langs := make([]Language, 0, len(report))
	for name, row := range report {
		if reserved[name] {
			continue
		}
		langs = append(langs, Language{
			Name:     name,
			Files:    row.NFiles,
			Code:     row.Code,
			Comments: row.Comment,
			Blank:    row.Blank,
		})
	}
	return langs, nil
}
