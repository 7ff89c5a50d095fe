// Package exitcodes defines the standard exit codes used by op-isolator.
package exitcodes

// Exit code constants used by op-isolator
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every test passed or was declared skipped
// * TestFailure (1): Used when one or more tests did not pass, or the run was interrupted
// * RuntimeErr (2): Used for runtime errors such as bad configuration, discovery failures or duplicate test names
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
