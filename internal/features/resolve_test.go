package features

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/cratectl/internal/manifest"
	"github.com/danmuck/cratectl/internal/testutil/testlog"
)

func decode(t *testing.T, src string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

const coreSrc = `
[package]
name = "engine_core"
version = "0.7.0"

[dependencies]
shred = "0.7"
serde = { version = "1", optional = true }
specs = { version = "0.14", optional = true }
specs-hierarchy = { version = "0.3", optional = true }
thread_profiler = { version = "0.3", optional = true }

[features]
default = ["specs-ecs"]
specs-ecs = ["specs", "specs-hierarchy"]
profiler = ["thread_profiler", "thread_profiler/thread_profiler"]
nightly = ["shred/nightly"]
saveload = ["serde", "specs?/serde"]
float64 = []
`

func TestResolveDefault(t *testing.T) {
	testlog.Start(t)

	res, err := Resolve(decode(t, coreSrc), Request{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(res.Features, []string{"default", "specs-ecs"}) {
		t.Fatalf("unexpected features: %v", res.Features)
	}
	if !reflect.DeepEqual(res.Optional, []string{"specs", "specs-hierarchy"}) {
		t.Fatalf("unexpected optional deps: %v", res.Optional)
	}
}

func TestResolveNoDefault(t *testing.T) {
	testlog.Start(t)

	res, err := Resolve(decode(t, coreSrc), Request{NoDefault: true, Features: []string{"float64"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(res.Features, []string{"float64"}) {
		t.Fatalf("unexpected features: %v", res.Features)
	}
	if len(res.Optional) != 0 {
		t.Fatalf("unexpected optional deps: %v", res.Optional)
	}
}

func TestResolveDepFeatureActivatesDep(t *testing.T) {
	testlog.Start(t)

	res, err := Resolve(decode(t, coreSrc), Request{NoDefault: true, Features: []string{"profiler"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(res.Optional, []string{"thread_profiler"}) {
		t.Fatalf("unexpected optional deps: %v", res.Optional)
	}
	if !reflect.DeepEqual(res.DepFeatures["thread_profiler"], []string{"thread_profiler"}) {
		t.Fatalf("unexpected dep features: %v", res.DepFeatures)
	}
}

func TestResolveWeakRefRequiresActivation(t *testing.T) {
	testlog.Start(t)

	// saveload alone activates serde, and specs?/serde must stay
	// inert because nothing activated specs
	res, err := Resolve(decode(t, coreSrc), Request{NoDefault: true, Features: []string{"saveload"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(res.Optional, []string{"serde"}) {
		t.Fatalf("unexpected optional deps: %v", res.Optional)
	}
	if _, ok := res.DepFeatures["specs"]; ok {
		t.Fatalf("weak reference applied without activation")
	}

	// with the default set active, specs is activated and the weak
	// reference applies
	res, err = Resolve(decode(t, coreSrc), Request{Features: []string{"saveload"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(res.DepFeatures["specs"], []string{"serde"}) {
		t.Fatalf("weak reference not applied: %v", res.DepFeatures)
	}
}

func TestResolveAll(t *testing.T) {
	testlog.Start(t)

	res, err := Resolve(decode(t, coreSrc), Request{All: true})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"default", "float64", "nightly", "profiler", "saveload", "specs-ecs"}
	if !reflect.DeepEqual(res.Features, want) {
		t.Fatalf("unexpected features: %v", res.Features)
	}
}

func TestResolveUnknownFeature(t *testing.T) {
	testlog.Start(t)

	_, err := Resolve(decode(t, coreSrc), Request{Features: []string{"simd"}})
	if !errors.Is(err, ErrUnknownFeature) {
		t.Fatalf("expected ErrUnknownFeature, got %v", err)
	}
}

func TestResolveUnknownDep(t *testing.T) {
	testlog.Start(t)

	src := `
[package]
name = "a"
version = "0.1.0"

[features]
broken = ["missing/feat"]
`
	_, err := Resolve(decode(t, src), Request{Features: []string{"broken"}})
	if !errors.Is(err, ErrUnknownDep) {
		t.Fatalf("expected ErrUnknownDep, got %v", err)
	}
}

func TestCycleDetection(t *testing.T) {
	testlog.Start(t)

	src := `
[package]
name = "a"
version = "0.1.0"

[features]
one = ["two"]
two = ["three"]
three = ["one"]
`
	m := decode(t, src)
	cycle := Cycle(m)
	if len(cycle) != 4 {
		t.Fatalf("expected a three-step cycle path, got %v", cycle)
	}
	if cycle[0] != cycle[len(cycle)-1] {
		t.Fatalf("cycle path does not close: %v", cycle)
	}

	if _, err := Resolve(m, Request{Features: []string{"one"}}); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	if got := Cycle(decode(t, coreSrc)); got != nil {
		t.Fatalf("false cycle: %v", got)
	}
}
