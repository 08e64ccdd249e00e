package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// testModeEnv disables rate limiting and keeps the worker from connecting
// to Redis and PostgreSQL, e.g. in CI smoke runs of the binaries.
const testModeEnv = "SHIFTLEDGER_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testModeFlag.Store(err == nil && on)
}

// InTestMode reports whether runtime side effects should be skipped.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after the environment changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
