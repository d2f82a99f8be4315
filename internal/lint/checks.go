package lint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cratectl/internal/features"
	"github.com/danmuck/cratectl/internal/manifest"
	"github.com/danmuck/cratectl/internal/semver"
)

func checkParseErrors(rc *runCtx) {
	for _, le := range rc.ws.Broken {
		rc.emit("", le.Path, le.Err.Error())
	}
}

func checkGraphCycle(rc *runCtx) {
	if cycle := rc.graph.Cycle(); cycle != nil {
		rc.emit("", "", "sibling dependency cycle: "+strings.Join(cycle, " -> "))
	}
}

func checkEditionMismatch(rc *runCtx) {
	editions := make(map[string][]string)
	for _, name := range rc.ws.Names() {
		ed := rc.ws.Packages[name].Manifest.Package.Edition
		if ed == "" {
			continue
		}
		editions[ed] = append(editions[ed], name)
	}
	if len(editions) < 2 {
		return
	}
	var parts []string
	for ed, pkgs := range editions {
		parts = append(parts, fmt.Sprintf("%s (%s)", ed, strings.Join(pkgs, ", ")))
	}
	sort.Strings(parts)
	rc.emit("", "", "packages declare different editions: "+strings.Join(parts, "; "))
}

func checkSiblingVersion(rc *runCtx) {
	m := rc.pkg.Manifest
	for _, tbl := range m.Tables() {
		for _, key := range sortedDepKeys(tbl.Deps) {
			dep := tbl.Deps[key]
			if dep.Path == "" {
				continue
			}
			subject := fmt.Sprintf("%s.%s", tbl.Table, key)

			sib, ok := rc.ws.ResolvePath(rc.pkg, dep)
			if !ok {
				rc.emitPkg(subject, fmt.Sprintf("path %q does not resolve to a workspace package", dep.Path))
				continue
			}
			sibName := sib.Manifest.Package.Name
			if want := dep.Name(key); want != sibName {
				rc.emitPkg(subject, fmt.Sprintf("path %q resolves to package %q, entry names %q", dep.Path, sibName, want))
				continue
			}
			if dep.Version == "" {
				continue
			}
			req, err := semver.ParseReq(dep.Version)
			if err != nil {
				rc.emitPkg(subject, err.Error())
				continue
			}
			if !req.Matches(sib.Version) {
				rc.emitPkg(subject, fmt.Sprintf("requires %q but sibling %s declares %s", dep.Version, sibName, sib.Version))
			}
		}
	}
}

func checkPathOutside(rc *runCtx) {
	m := rc.pkg.Manifest
	for _, tbl := range m.Tables() {
		for _, key := range sortedDepKeys(tbl.Deps) {
			dep := tbl.Deps[key]
			if dep.Path == "" {
				continue
			}
			if !rc.ws.Inside(rc.pkg, dep) {
				subject := fmt.Sprintf("%s.%s", tbl.Table, key)
				rc.emitPkg(subject, fmt.Sprintf("path %q escapes the workspace root", dep.Path))
			}
		}
	}
}

// extRef is one feature requirement pointing at a dependency, either
// from the feature table or from a dependency entry's feature list.
type extRef struct {
	subject string
	depKey  string
	feature string // empty for bare activation
}

// depRefs collects every dependency-facing feature reference of the
// package, sorted by subject.
func depRefs(m *manifest.Manifest) []extRef {
	var refs []extRef
	for _, feat := range sortedFeatKeys(m.Features) {
		for _, raw := range m.Features[feat] {
			ref, err := manifest.ParseFeatureRef(raw)
			if err != nil || ref.Local() {
				continue
			}
			refs = append(refs, extRef{
				subject: fmt.Sprintf("features.%s", feat),
				depKey:  ref.Dep,
				feature: ref.Feature,
			})
		}
	}
	for _, tbl := range m.Tables() {
		for _, key := range sortedDepKeys(tbl.Deps) {
			for _, feat := range tbl.Deps[key].Features {
				refs = append(refs, extRef{
					subject: fmt.Sprintf("%s.%s", tbl.Table, key),
					depKey:  key,
					feature: feat,
				})
			}
		}
	}
	return refs
}

func checkFeatureRef(rc *runCtx) {
	m := rc.pkg.Manifest
	for _, ref := range depRefs(m) {
		dep, ok := lookupDep(m, ref.subject, ref.depKey)
		if !ok {
			rc.emitPkg(ref.subject, fmt.Sprintf("references undeclared dependency %q", ref.depKey))
			continue
		}
		if ref.feature == "" {
			continue
		}

		if sib, ok := rc.ws.ResolvePath(rc.pkg, dep); ok {
			if !siblingHasFeature(sib.Manifest, ref.feature) {
				rc.emitPkg(ref.subject, fmt.Sprintf("sibling %s has no feature %q",
					sib.Manifest.Package.Name, ref.feature))
			}
			continue
		}

		if rc.opts.Registry == nil {
			continue // reported by feature-unverified
		}
		crate := dep.Name(ref.depKey)
		req, err := depReq(dep)
		if err != nil {
			continue // malformed requirement already caught at load
		}
		feats, known, err := rc.opts.Registry.Features(crate, req)
		if err != nil {
			log.Warn().Err(err).Str("crate", crate).Msg("registry lookup failed")
			continue
		}
		if !known {
			continue // reported by feature-unverified
		}
		if !containsString(feats, ref.feature) {
			rc.emitPkg(ref.subject, fmt.Sprintf("crate %s (%s) has no feature %q",
				crate, dep.Version, ref.feature))
		}
	}
}

func checkFeatureUnverified(rc *runCtx) {
	m := rc.pkg.Manifest
	unverified := make(map[string]int)
	for _, ref := range depRefs(m) {
		dep, ok := lookupDep(m, ref.subject, ref.depKey)
		if !ok || ref.feature == "" {
			continue
		}
		if _, sibling := rc.ws.ResolvePath(rc.pkg, dep); sibling {
			continue
		}
		crate := dep.Name(ref.depKey)
		if rc.opts.Registry != nil {
			req, err := depReq(dep)
			if err != nil {
				continue
			}
			if _, known, err := rc.opts.Registry.Features(crate, req); err == nil && known {
				continue
			}
		}
		unverified[crate]++
	}
	for _, crate := range sortedCountKeys(unverified) {
		rc.emitPkg(crate, fmt.Sprintf("%d feature reference(s) not verifiable offline", unverified[crate]))
	}
}

func checkFeatureLocal(rc *runCtx) {
	m := rc.pkg.Manifest
	for _, feat := range sortedFeatKeys(m.Features) {
		for _, raw := range m.Features[feat] {
			ref, err := manifest.ParseFeatureRef(raw)
			if err != nil || !ref.Local() {
				continue
			}
			name := ref.Feature
			if _, ok := m.Features[name]; ok {
				continue
			}
			subject := fmt.Sprintf("features.%s", feat)
			dep, ok := m.RuntimeDependency(name)
			switch {
			case ok && dep.Optional:
				// implicit optional-dependency feature
			case ok:
				rc.emitPkg(subject, fmt.Sprintf("%q activates a non-optional dependency", name))
			default:
				rc.emitPkg(subject, fmt.Sprintf("unknown feature or dependency %q", name))
			}
		}
	}
}

func checkFeatureCycle(rc *runCtx) {
	if cycle := features.Cycle(rc.pkg.Manifest); cycle != nil {
		rc.emitPkg("features", "feature cycle: "+strings.Join(cycle, " -> "))
	}
}

func checkOptionalUndeclared(rc *runCtx) {
	m := rc.pkg.Manifest
	referenced := make(map[string]struct{})
	for _, feat := range sortedFeatKeys(m.Features) {
		for _, raw := range m.Features[feat] {
			ref, err := manifest.ParseFeatureRef(raw)
			if err != nil {
				continue
			}
			if ref.Local() {
				referenced[ref.Feature] = struct{}{}
				continue
			}
			referenced[ref.Dep] = struct{}{}
		}
	}
	for _, tbl := range m.Tables() {
		if tbl.Table == manifest.TableDevDependencies {
			continue
		}
		for _, key := range sortedDepKeys(tbl.Deps) {
			if !tbl.Deps[key].Optional {
				continue
			}
			if _, ok := referenced[key]; !ok {
				subject := fmt.Sprintf("%s.%s", tbl.Table, key)
				rc.emitPkg(subject, "optional dependency is never enabled by a feature")
			}
		}
	}
}

func checkDuplicateDep(rc *runCtx) {
	m := rc.pkg.Manifest
	for _, key := range sortedDepKeys(m.Dependencies) {
		dev, ok := m.DevDependencies[key]
		if !ok {
			continue
		}
		dep := m.Dependencies[key]
		if dep.Version == "" || dev.Version == "" || dep.Version == dev.Version {
			continue
		}
		mainReq, mainErr := semver.ParseReq(dep.Version)
		devReq, devErr := semver.ParseReq(dev.Version)
		if mainErr == nil && devErr == nil && mainReq.Intersects(devReq) {
			// differently spelled but overlapping ranges agree
			continue
		}
		rc.emitPkg("dependencies."+key, fmt.Sprintf(
			"declared as %q in dependencies and %q in dev-dependencies", dep.Version, dev.Version))
	}
}

func checkUnknownKey(rc *runCtx) {
	for _, key := range rc.pkg.Manifest.Undecoded {
		rc.emitPkg(key, "unrecognized manifest key")
	}
}

func checkMetadata(rc *runCtx) {
	p := rc.pkg.Manifest.Package
	if p.Publish != nil && !*p.Publish {
		return
	}
	if strings.TrimSpace(p.Description) == "" {
		rc.emitPkg("package.description", "publishable package has no description")
	}
	if strings.TrimSpace(p.License) == "" && strings.TrimSpace(p.LicenseFile) == "" {
		rc.emitPkg("package.license", "publishable package has no license")
	}
}

// lookupDep resolves a feature reference's dependency against the
// tables the reference's origin may legally see: feature-table
// references never see dev-dependencies, a dependency entry's own
// feature list trivially sees itself.
func lookupDep(m *manifest.Manifest, subject, key string) (manifest.Dependency, bool) {
	if strings.HasPrefix(subject, string(manifest.TableDevDependencies)+".") {
		d, ok := m.DevDependencies[key]
		return d, ok
	}
	return m.RuntimeDependency(key)
}

func depReq(dep manifest.Dependency) (semver.Req, error) {
	if dep.Version == "" {
		return semver.ParseReq("*")
	}
	return semver.ParseReq(dep.Version)
}

func siblingHasFeature(m *manifest.Manifest, feature string) bool {
	if _, ok := m.Features[feature]; ok {
		return true
	}
	if d, ok := m.RuntimeDependency(feature); ok && d.Optional {
		return true
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedDepKeys(m map[string]manifest.Dependency) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFeatKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
