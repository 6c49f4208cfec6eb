// Package framework contains the shared building blocks of the test harness: the Logger and
// SectionLogger sinks and the CapturingLogger used to keep per-test output.
//
// The other pieces live in subpackages:
//
// isolation: the nested scope manager that owns cleanup actions and their ordering
//
// ldtest: a test runner, similar to Go's testing package, whose scopes are isolation scopes
//
// helpers: polling, channel and option helpers usable with any test context
package framework
