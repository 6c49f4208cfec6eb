package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/scopeharness/scopeharness/framework/ldtest"
)

type commandParams struct {
	filters        ldtest.RegexFilters
	skipFile       string
	configFile     string
	recordFailures string
	debug          bool
	debugAll       bool
	traceScopes    bool
	jUnitFile      string
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.StringVar(&c.skipFile, "skip-from", "", "file containing test IDs to skip, one per line")
	fs.StringVar(&c.configFile, "config", "", "YAML file with suite settings (scope names, nesting depth, timeout)")
	fs.StringVar(&c.recordFailures, "record-failures", "", "write the IDs of failed tests to the specified path")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")
	fs.BoolVar(&c.traceScopes, "trace-scopes", false, "print every isolation scope as it begins and ends")
	fs.StringVar(&c.jUnitFile, "junit", "", "write JUnit XML output to the specified path")

	if err := fs.Parse(args[1:]); err != nil {
		return false // the FlagSet has already printed the error and usage
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return false
	}
	return true
}
