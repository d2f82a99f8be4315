package manifest

import (
	"errors"
	"strings"
	"testing"
)

const coreManifest = `
[package]
name = "engine_core"
version = "0.7.0"
authors = ["Engine Developers <dev@engine.local>"]
edition = "2018"
description = "Math and ECS integration for the engine"
license = "MIT"
repository = "https://example.invalid/engine"

[dependencies]
nalgebra = { version = "0.18", features = ["serde-serialize", "mint"] }
specs = { version = "0.14", optional = true }
specs-hierarchy = { version = "0.3", optional = true }
shred = "0.7"
shrev = "1.1"
hibitset = { version = "0.5.2", features = ["parallel"] }
rayon = "1.1"
serde = { version = "1", features = ["derive"] }
log = "0.4"
thread_profiler = { version = "0.3", optional = true }

[dev-dependencies]
approx = "0.3"

[features]
default = ["specs-ecs"]
specs-ecs = ["specs", "specs-hierarchy"]
profiler = ["thread_profiler", "thread_profiler/thread_profiler"]
nightly = ["shred/nightly"]
saveload = ["specs?/serde"]
float64 = []
`

func TestDecodeCoreManifest(t *testing.T) {
	m, err := Decode(strings.NewReader(coreManifest))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if m.Package.Name != "engine_core" || m.Package.Version != "0.7.0" {
		t.Fatalf("unexpected identity: %+v", m.Package)
	}
	if m.Package.Edition != "2018" {
		t.Fatalf("unexpected edition: %q", m.Package.Edition)
	}

	shred, ok := m.Dependencies["shred"]
	if !ok {
		t.Fatalf("missing shorthand dependency")
	}
	if shred.Version != "0.7" || !shred.DefaultFeatures || shred.Optional {
		t.Fatalf("shorthand dependency decoded wrong: %+v", shred)
	}

	nalgebra := m.Dependencies["nalgebra"]
	if nalgebra.Version != "0.18" || len(nalgebra.Features) != 2 {
		t.Fatalf("table dependency decoded wrong: %+v", nalgebra)
	}

	if !m.Dependencies["specs"].Optional {
		t.Fatalf("optional flag lost")
	}
	if _, ok := m.DevDependencies["approx"]; !ok {
		t.Fatalf("dev-dependencies not decoded")
	}
	if len(m.Features["profiler"]) != 2 {
		t.Fatalf("feature table decoded wrong: %+v", m.Features)
	}
}

func TestDecodeDefaultFeaturesToggle(t *testing.T) {
	src := `
[package]
name = "audio"
version = "0.3.0"

[dependencies]
rodio = { version = "0.9", default-features = false, features = ["vorbis"] }
core = { path = "../core", version = "0.7.0" }
`
	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rodio := m.Dependencies["rodio"]
	if rodio.DefaultFeatures {
		t.Fatalf("default-features=false not honored")
	}
	core := m.Dependencies["core"]
	if core.Path != "../core" || core.Version != "0.7.0" {
		t.Fatalf("sibling dependency decoded wrong: %+v", core)
	}
}

func TestDecodeRejectsMalformedDependency(t *testing.T) {
	src := `
[package]
name = "broken"
version = "0.1.0"

[dependencies]
serde = 1
`
	if _, err := Decode(strings.NewReader(src)); err == nil {
		t.Fatalf("expected dependency form error")
	}
}

func TestValidateIdentityErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want error
	}{
		{"empty", `x = 1`, ErrMissingPackageName},
		{"no version", "[package]\nname = \"a\"", ErrMissingPackageVersion},
		{"bad name", "[package]\nname = \"no spaces\"\nversion = \"0.1.0\"", ErrInvalidPackageName},
		{"bad edition", "[package]\nname = \"a\"\nversion = \"0.1.0\"\nedition = \"2019\"", ErrUnknownEdition},
	}
	for _, tc := range cases {
		m, err := Decode(strings.NewReader(tc.src))
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if err := m.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestValidateDependencyWithoutSource(t *testing.T) {
	src := `
[package]
name = "a"
version = "0.1.0"

[dependencies]
ghost = { optional = true }
`
	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := m.Validate(); !errors.Is(err, ErrDependencyForm) {
		t.Fatalf("expected ErrDependencyForm, got %v", err)
	}
}

func TestUndecodedTopLevelKeys(t *testing.T) {
	src := `
[package]
name = "a"
version = "0.1.0"

[bench]
harness = false

[badges]
travis-ci = { repository = "example/engine" }
`
	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(m.Undecoded) != 1 || m.Undecoded[0] != "bench" {
		t.Fatalf("unexpected undecoded keys: %v", m.Undecoded)
	}
}

func TestParseFeatureRefForms(t *testing.T) {
	cases := []struct {
		raw  string
		want FeatureRef
	}{
		{"float64", FeatureRef{Raw: "float64", Feature: "float64"}},
		{"dep:thread_profiler", FeatureRef{Raw: "dep:thread_profiler", Dep: "thread_profiler", DepOnly: true}},
		{"shred/nightly", FeatureRef{Raw: "shred/nightly", Dep: "shred", Feature: "nightly"}},
		{"specs?/serde", FeatureRef{Raw: "specs?/serde", Dep: "specs", Feature: "serde", Weak: true}},
	}
	for _, tc := range cases {
		got, err := ParseFeatureRef(tc.raw)
		if err != nil {
			t.Fatalf("%q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %+v want %+v", tc.raw, got, tc.want)
		}
	}

	for _, raw := range []string{"", "a/b/c", "dep:", "?/x", "bad name"} {
		if _, err := ParseFeatureRef(raw); !errors.Is(err, ErrInvalidFeatureRef) {
			t.Fatalf("%q: expected ErrInvalidFeatureRef, got %v", raw, err)
		}
	}
}
