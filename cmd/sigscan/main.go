package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"text/tabwriter"

	"gitlab.com/stephen-fox/hookkit/applied"
	"gitlab.com/stephen-fox/hookkit/memory"
	"gitlab.com/stephen-fox/hookkit/pattern"
	"gitlab.com/stephen-fox/hookkit/peimage"
	"gitlab.com/stephen-fox/hookkit/process"
	"gitlab.com/stephen-fox/hookkit/sigdb"
)

const (
	pidArg     = "pid"
	nameArg    = "name"
	fileArg    = "file"
	dbArg      = "db"
	moduleArg  = "module"
	enableArg  = "enable"
	ptrSizeArg = "ptrsize"
	verboseArg = "v"
	helpArg    = "h"

	appName = "sigscan"
	usage   = appName + `
DESCRIPTION
  Resolves the signatures in a signature database against a module of
  a running process or against a PE file on disk.

  With -` + enableArg + `, the database's patches are applied to the process
  until ` + appName + ` is interrupted, at which point the original
  bytes are restored.

USAGE
  ` + appName + ` -` + dbArg + ` FILE (-` + pidArg + ` PID | -` + nameArg + ` NAME | -` + fileArg + ` PE-FILE) [options]

EXAMPLES
  Resolve signatures in game.exe's main module:
    $ ` + appName + ` -` + dbArg + ` sigs.toml -` + nameArg + ` game.exe

  Apply the patches until ctrl+c is pressed:
    $ ` + appName + ` -` + dbArg + ` sigs.toml -` + nameArg + ` game.exe -` + enableArg + `

  Resolve signatures in a file:
    $ ` + appName + ` -` + dbArg + ` sigs.toml -` + fileArg + ` game.exe

OPTIONS
`
)

func main() {
	log.SetFlags(0)

	err := mainWithError()
	if err != nil {
		log.Fatalln("fatal:", err)
	}
}

func mainWithError() error {
	help := flag.Bool(
		helpArg,
		false,
		"Display this information")

	pid := flag.Int(
		pidArg,
		0,
		"The PID of the process to scan")

	procName := flag.String(
		nameArg,
		"",
		"The name of the process to scan")

	filePath := flag.String(
		fileArg,
		"",
		"A PE file to scan instead of a process")

	dbPath := flag.String(
		dbArg,
		"",
		"The signature database file path")

	moduleName := flag.String(
		moduleArg,
		"",
		"The module to scan (overrides the database's module; defaults\n"+
			"to the executable)")

	enable := flag.Bool(
		enableArg,
		false,
		"Apply the database's patches until interrupted")

	ptrSize := flag.Int(
		ptrSizeArg,
		0,
		"The pointer size in bytes used by data signatures when scanning\n"+
			"a file (defaults to the host's pointer size)")

	verbose := flag.Bool(
		verboseArg,
		false,
		"Enable verbose logging")

	flag.Parse()

	if *help {
		os.Stderr.WriteString(usage)
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *dbPath == "" {
		return fmt.Errorf("please specify a signature database using '-%s'", dbArg)
	}

	numTargets := 0
	for _, isSet := range []bool{*pid != 0, *procName != "", *filePath != ""} {
		if isSet {
			numTargets++
		}
	}

	if numTargets != 1 {
		return fmt.Errorf("please specify one of '-%s', '-%s', or '-%s'", pidArg, nameArg, fileArg)
	}

	if *enable && *filePath != "" {
		return fmt.Errorf("'-%s' cannot be used with '-%s'", enableArg, fileArg)
	}

	var logger *log.Logger
	if *verbose {
		logger = log.New(os.Stderr, "", 0)
	}

	db, err := sigdb.Load(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to load signature database - %w", err)
	}

	if *moduleName == "" {
		*moduleName = db.Module
	}

	var accessor memory.Accessor
	var module pattern.Module
	var proc *process.Process

	switch {
	case *filePath != "":
		img, err := peimage.Load(*filePath)
		if err != nil {
			return fmt.Errorf("failed to load pe file - %w", err)
		}

		accessor = img
		module = img.Module
	default:
		if *pid != 0 {
			proc, err = process.Open(*pid)
		} else {
			proc, err = process.OpenByName(*procName)
		}
		if err != nil {
			return err
		}
		defer proc.Close()

		module, err = proc.Module(*moduleName)
		if err != nil {
			return err
		}

		accessor = proc
		*ptrSize = proc.PointerSize()
	}

	scanner, err := pattern.NewScanner(pattern.ScannerConfig{
		Accessor:    accessor,
		Module:      module,
		Offset:      db.ScanOffset,
		PointerSize: *ptrSize,
		OptLogger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to read module %q - %w", module.Name, err)
	}

	resolved, err := db.Resolve(scanner)
	if err != nil {
		return err
	}

	err = writeResults(os.Stdout, db, resolved)
	if err != nil {
		return err
	}

	if !*enable {
		return nil
	}

	return applyUntilInterrupted(db, resolved, proc, logger)
}

func writeResults(w io.Writer, db *sigdb.DB, resolved sigdb.Resolved) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "NAME\tTYPE\tFOUND\tADDRESS\tBASE ADDRESS\tOFFSET")

	for _, sig := range db.Signatures {
		res := resolved[sig.Name]
		if !res.Found {
			fmt.Fprintf(tw, "%s\t%s\tfalse\t-\t-\t-\n", sig.Name, sig.Type)
			continue
		}

		fmt.Fprintf(tw, "%s\t%s\ttrue\t%s\t%s\t0x%x\n",
			sig.Name, sig.Type, res.ReadAddress, res.BaseAddress, res.Offset)
	}

	return tw.Flush()
}

func applyUntilInterrupted(db *sigdb.DB, resolved sigdb.Resolved, proc *process.Process, logger *log.Logger) error {
	patches, err := applied.NewPatchManager(applied.PatchManagerConfig{
		Accessor:  proc,
		OptLogger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		err := patches.Close()
		if err != nil {
			log.Printf("failed to restore patches - %s", err)
		}
	}()

	_, err = db.Apply(resolved, patches)
	if err != nil {
		log.Printf("some patches were not created - %s", err)
	}

	err = patches.EnableAll()
	if err != nil {
		return fmt.Errorf("failed to enable patches - %w", err)
	}

	log.Printf("enabled %d patch(es) - press ctrl+c to restore them and exit", patches.Len())

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	<-interrupts
	signal.Stop(interrupts)

	log.Printf("restoring patches")

	return nil
}
