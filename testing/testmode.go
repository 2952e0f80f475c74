// Package testing switches the binaries into test mode when imported.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

// EnsureTestMode sets APP_TEST_MODE so main functions return before touching
// Postgres, Redis or SMTP.
func EnsureTestMode() {
	once.Do(func() {
		_ = os.Setenv("APP_TEST_MODE", "1")
	})
}

func init() {
	EnsureTestMode()
}
