// Package isolation manages nested lifetimes of test fixtures.
//
// A Manager holds a stack of scopes, one per nesting level (for instance the whole test
// run, then a group of tests, then a single test). Test code registers cleanup actions with
// AddCleanupAction; each action belongs to the scope that is current at the time, and runs
// exactly once when that scope is ended, in reverse order of registration.
//
// Scopes are entered with BeginScope, which takes an initializer. The initializer may
// register cleanup actions for the new scope before it is fully set up. If the initializer
// fails, whatever it already registered is unwound right away and the failure is returned
// together with any failures from that unwind, so a half-built scope never leaks.
//
// A Manager is not safe for concurrent use. It is meant to be driven from the single
// goroutine that executes the tests.
package isolation
