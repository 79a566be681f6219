package app

import "os"

// TestModeEnv, when set to "1", makes the binaries return before opening
// any connection. Smoke tests of the packaged images rely on it.
const TestModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether TestModeEnv is enabled.
func InTestMode() bool {
	return os.Getenv(TestModeEnv) == "1"
}
