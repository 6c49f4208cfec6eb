// Package helpers contains small test utilities that work with any TestContext, including
// *testing.T and *ldtest.T: polling, channel receives with timeouts, and functional options.
package helpers
