// Package report renders the outcome of a lint run for terminals and
// for machine consumption.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/danmuck/cratectl/internal/lint"
)

// Format selects a renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name from flags or configuration.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("report: unknown format %q", s)
	}
}

// Summary counts diagnostics by severity.
type Summary struct {
	Errors   int `json:"errors" yaml:"errors"`
	Warnings int `json:"warnings" yaml:"warnings"`
}

// Report is one completed lint run.
type Report struct {
	ID          string            `json:"id" yaml:"id"`
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
	Root        string            `json:"root" yaml:"root"`
	Packages    []string          `json:"packages" yaml:"packages"`
	Diagnostics []lint.Diagnostic `json:"diagnostics" yaml:"diagnostics"`
	Summary     Summary           `json:"summary" yaml:"summary"`
}

// New assembles a report with a fresh run id.
func New(root string, packages []string, diags []lint.Diagnostic) Report {
	r := Report{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Root:        root,
		Packages:    packages,
		Diagnostics: diags,
	}
	for _, d := range diags {
		switch d.Severity {
		case lint.SeverityError:
			r.Summary.Errors++
		case lint.SeverityWarning:
			r.Summary.Warnings++
		}
	}
	return r
}

// Failed reports whether the run should exit non-zero.
func (r Report) Failed() bool {
	return r.Summary.Errors > 0
}

// Render writes the report in the requested format.
func (r Report) Render(w io.Writer, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	default:
		return r.renderText(w)
	}
}

func (r Report) renderText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "workspace %s: %d package(s)\n", r.Root, len(r.Packages)); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range r.Diagnostics {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Severity, d.Check, d.Package, d.Subject, d.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d error(s), %d warning(s)\n", r.Summary.Errors, r.Summary.Warnings)
	return err
}
