// Package guard switches the process into test mode when imported so that
// runtime side effects stay disabled in tests.
package guard

import (
	"os"
	"sync"
)

// EnvVar names the test mode switch.
const EnvVar = "LOGISTICS_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvVar) == "" {
			_ = os.Setenv(EnvVar, "1")
		}
	})
}
