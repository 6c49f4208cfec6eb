// Package conformance contains a suite of tests that checks the behavior of the isolation
// scope manager from the outside, the way a test framework built on it would use it.
//
// Tests in this package use other packages as follows:
//
// isolation: the scope manager under test
//
// ldtest: the basic test scope framework that runs the suite
//
// helpers: channel and polling helpers
package conformance
