package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/cratectl/internal/logging"
	"github.com/danmuck/cratectl/internal/registry"
	"github.com/danmuck/cratectl/internal/semver"
)

const usage = `usage: idxctl <command> [flags]

commands:
  import    ingest a newline-delimited JSON crate dump
  features  print the indexed features of a crate
`

func main() {
	logging.ConfigureRuntime()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(os.Args[2:])
	case "features":
		err = runFeatures(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "idxctl: unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "idxctl: %v\n", err)
		os.Exit(1)
	}
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dbPath := fs.String("db", "index.db", "registry index database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("import: exactly one dump file expected")
	}

	db, err := registry.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer f.Close()

	sum, err := db.ImportDump(f)
	if err != nil {
		return err
	}
	fmt.Printf("import %s: %d crate(s), %d skipped, %s\n", sum.ID, sum.Crates, sum.Skipped, sum.Elapsed)
	return nil
}

func runFeatures(args []string) error {
	fs := flag.NewFlagSet("features", flag.ExitOnError)
	dbPath := fs.String("db", "index.db", "registry index database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("features: expected <crate> [requirement]")
	}

	reqStr := "*"
	if fs.NArg() == 2 {
		reqStr = fs.Arg(1)
	}
	req, err := semver.ParseReq(reqStr)
	if err != nil {
		return err
	}

	db, err := registry.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	feats, ok, err := db.Features(fs.Arg(0), req)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("features: %s (%s) not in index", fs.Arg(0), reqStr)
	}
	fmt.Println(strings.Join(feats, "\n"))
	return nil
}
