// Package ldtest contains a test runner framework that is similar to Go's testing package,
// but is run as regular Go application code rather than Go tests. It also adds richer
// capabilities for configuration, logging, and result reporting.
//
// Each test scope is backed by an isolation scope (see package isolation): the whole run is
// the assembly scope, and every T.Run or T.RunWithSetup begins a nested one. Cleanup
// functions registered with T.Defer run when their scope ends, innermost first, and a failing
// cleanup is reported as a failure of the test that owns it.
package ldtest
