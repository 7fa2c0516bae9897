// Package exitcodes defines the standard exit codes used by the station binary.
package exitcodes

// Exit code constants used by the station binary
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when the test run passes
// * TestFailure (1): Used when the test run fails or aborts
// * RuntimeErr (2): Used for runtime errors such as panics, timeouts or other failures
const (
	Success     = 0 // Test run passed
	TestFailure = 1 // Test run failed or aborted
	RuntimeErr  = 2 // Runtime errors or timeouts
)
