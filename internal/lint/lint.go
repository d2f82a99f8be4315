// Package lint runs consistency checks over a loaded workspace:
// manifest well-formedness, sibling version agreement and feature
// reference integrity, plus the structural hygiene checks around
// them.
package lint

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cratectl/internal/semver"
	"github.com/danmuck/cratectl/internal/workspace"
)

// Severity of a diagnostic. Off disables a check entirely.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityOff     Severity = "off"
)

// ParseSeverity validates a severity name from configuration.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityError, SeverityWarning, SeverityOff:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("lint: unknown severity %q", s)
	}
}

// Diagnostic is one finding.
type Diagnostic struct {
	Check    string   `json:"check" yaml:"check"`
	Severity Severity `json:"severity" yaml:"severity"`
	Package  string   `json:"package,omitempty" yaml:"package,omitempty"`
	Subject  string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Detail   string   `json:"detail" yaml:"detail"`
}

func (d Diagnostic) String() string {
	switch {
	case d.Package == "":
		return fmt.Sprintf("%s: %s: %s", d.Severity, d.Check, d.Detail)
	case d.Subject == "":
		return fmt.Sprintf("%s: %s: %s: %s", d.Severity, d.Check, d.Package, d.Detail)
	default:
		return fmt.Sprintf("%s: %s: %s: %s: %s", d.Severity, d.Check, d.Package, d.Subject, d.Detail)
	}
}

// FeatureSource answers which features an external crate version
// exposes. Lookups return ok=false for crates the source does not
// know.
type FeatureSource interface {
	Features(crate string, req semver.Req) ([]string, bool, error)
}

// Options tunes a run. Severities overrides the per-check defaults by
// check name; Registry, when set, verifies external feature
// references.
type Options struct {
	Severities map[string]Severity
	Registry   FeatureSource
}

type check struct {
	name   string
	def    Severity
	run    func(rc *runCtx)
	global bool // runs once per workspace rather than per package
}

// The check table. Per-package checks receive rc.pkg; workspace
// checks run once with rc.pkg nil.
var checks = []check{
	{name: "parse-error", def: SeverityError, run: checkParseErrors, global: true},
	{name: "graph-cycle", def: SeverityError, run: checkGraphCycle, global: true},
	{name: "edition-mismatch", def: SeverityWarning, run: checkEditionMismatch, global: true},
	{name: "sibling-version", def: SeverityError, run: checkSiblingVersion},
	{name: "path-outside", def: SeverityError, run: checkPathOutside},
	{name: "feature-ref", def: SeverityError, run: checkFeatureRef},
	{name: "feature-unverified", def: SeverityWarning, run: checkFeatureUnverified},
	{name: "feature-local", def: SeverityError, run: checkFeatureLocal},
	{name: "feature-cycle", def: SeverityError, run: checkFeatureCycle},
	{name: "optional-undeclared", def: SeverityWarning, run: checkOptionalUndeclared},
	{name: "duplicate-dep", def: SeverityWarning, run: checkDuplicateDep},
	{name: "unknown-key", def: SeverityWarning, run: checkUnknownKey},
	{name: "metadata", def: SeverityWarning, run: checkMetadata},
}

// Checks returns the known check names, sorted.
func Checks() []string {
	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

type runCtx struct {
	ws       *workspace.Workspace
	graph    *workspace.Graph
	opts     Options
	current  check
	severity Severity
	pkg      *workspace.Package
	out      *[]Diagnostic
}

func (rc *runCtx) emit(pkgName, subject, detail string) {
	*rc.out = append(*rc.out, Diagnostic{
		Check:    rc.current.name,
		Severity: rc.severity,
		Package:  pkgName,
		Subject:  subject,
		Detail:   detail,
	})
}

func (rc *runCtx) emitPkg(subject, detail string) {
	rc.emit(rc.pkg.Manifest.Package.Name, subject, detail)
}

// Run executes every enabled check and returns diagnostics in a
// deterministic order.
func Run(ws *workspace.Workspace, opts Options) ([]Diagnostic, error) {
	known := make(map[string]struct{}, len(checks))
	for _, c := range checks {
		known[c.name] = struct{}{}
	}
	for name := range opts.Severities {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("lint: severity override for unknown check %q", name)
		}
	}

	var out []Diagnostic
	rc := &runCtx{ws: ws, graph: ws.Graph(), opts: opts, out: &out}

	for _, c := range checks {
		sev := c.def
		if override, ok := opts.Severities[c.name]; ok {
			sev = override
		}
		if sev == SeverityOff {
			continue
		}
		rc.current, rc.severity = c, sev

		if c.global {
			rc.pkg = nil
			c.run(rc)
			continue
		}
		for _, name := range ws.Names() {
			rc.pkg = ws.Packages[name]
			c.run(rc)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		if a.Check != b.Check {
			return a.Check < b.Check
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Detail < b.Detail
	})

	log.Debug().
		Int("packages", len(ws.Packages)).
		Int("diagnostics", len(out)).
		Msg("lint run complete")
	return out, nil
}

// Errors reports whether any diagnostic carries error severity.
func Errors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
