package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/danmuck/cratectl/internal/features"
	"github.com/danmuck/cratectl/internal/lint"
	"github.com/danmuck/cratectl/internal/logging"
	"github.com/danmuck/cratectl/internal/registry"
	"github.com/danmuck/cratectl/internal/report"
	"github.com/danmuck/cratectl/internal/workspace"
)

const usage = `usage: cratectl <command> [flags]

commands:
  check     lint a workspace for manifest consistency
  graph     print the sibling dependency order
  features  unify the feature set of one package
  list      list workspace packages
`

func main() {
	logging.ConfigureRuntime()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "check":
		err = runCheck(os.Args[2:])
	case "graph":
		err = runGraph(os.Args[2:])
	case "features":
		err = runFeatures(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "cratectl: unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		if err == errFindings {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "cratectl: %v\n", err)
		os.Exit(2)
	}
}

// errFindings marks a run that completed but found lint errors.
var errFindings = fmt.Errorf("lint errors found")

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to cratectl.toml")
	root := fs.String("root", "", "workspace root (overrides config)")
	format := fs.String("format", "", "output format: text, json or yaml")
	index := fs.String("index", "", "registry index database (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := defaultConfig()
	if *configPath != "" {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *root != "" {
		cfg.Root = *root
	}
	if *format != "" {
		f, err := report.ParseFormat(*format)
		if err != nil {
			return err
		}
		cfg.Format = f
	}
	if *index != "" {
		cfg.Index = *index
	}

	ws, err := workspace.Load(context.Background(), cfg.Root, workspace.LoadOptions{Exclude: cfg.Exclude})
	if err != nil {
		return err
	}

	opts := lint.Options{Severities: cfg.Severities}
	if cfg.Index != "" {
		db, err := registry.Open(cfg.Index)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Registry = db
	}

	diags, err := lint.Run(ws, opts)
	if err != nil {
		return err
	}

	rep := report.New(ws.Root, ws.Names(), diags)
	if err := rep.Render(os.Stdout, cfg.Format); err != nil {
		return err
	}
	if rep.Failed() {
		return errFindings
	}
	return nil
}

func runGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	root := fs.String("root", ".", "workspace root")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := workspace.Load(context.Background(), *root, workspace.LoadOptions{})
	if err != nil {
		return err
	}
	g := ws.Graph()
	order, err := g.TopoOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		pkg := ws.Packages[name]
		deps := g.Edges(name)
		if len(deps) == 0 {
			fmt.Printf("%s %s\n", name, pkg.Version)
			continue
		}
		fmt.Printf("%s %s -> %s\n", name, pkg.Version, strings.Join(deps, ", "))
	}
	return nil
}

func runFeatures(args []string) error {
	fs := flag.NewFlagSet("features", flag.ExitOnError)
	root := fs.String("root", ".", "workspace root")
	pkgName := fs.String("package", "", "package to resolve")
	list := fs.String("features", "", "comma-separated features to enable")
	all := fs.Bool("all", false, "enable every feature")
	noDefault := fs.Bool("no-default", false, "skip the default feature set")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pkgName == "" {
		return fmt.Errorf("features: -package is required")
	}

	ws, err := workspace.Load(context.Background(), *root, workspace.LoadOptions{})
	if err != nil {
		return err
	}
	pkg, ok := ws.Packages[*pkgName]
	if !ok {
		return fmt.Errorf("features: package %q not in workspace", *pkgName)
	}

	req := features.Request{All: *all, NoDefault: *noDefault}
	if *list != "" {
		for _, f := range strings.Split(*list, ",") {
			if v := strings.TrimSpace(f); v != "" {
				req.Features = append(req.Features, v)
			}
		}
	}

	res, err := features.Resolve(pkg.Manifest, req)
	if err != nil {
		return err
	}
	for _, f := range res.Features {
		fmt.Printf("feature %s\n", f)
	}
	for _, dep := range res.Optional {
		fmt.Printf("optional %s\n", dep)
	}
	depNames := make([]string, 0, len(res.DepFeatures))
	for dep := range res.DepFeatures {
		depNames = append(depNames, dep)
	}
	sort.Strings(depNames)
	for _, dep := range depNames {
		fmt.Printf("dep %s: %s\n", dep, strings.Join(res.DepFeatures[dep], ", "))
	}
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	root := fs.String("root", ".", "workspace root")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := workspace.Load(context.Background(), *root, workspace.LoadOptions{})
	if err != nil {
		return err
	}
	for _, name := range ws.Names() {
		pkg := ws.Packages[name]
		fmt.Printf("%s %s %s\n", name, pkg.Version, pkg.Dir)
	}
	for _, broken := range ws.Broken {
		fmt.Printf("broken %s: %v\n", broken.Path, broken.Err)
	}
	return nil
}
