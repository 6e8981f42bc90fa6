package acceptance

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// binary is the absolute path of the collective binary under test
var binary string

// TestMain locates the built binary before running the acceptance tests
func TestMain(m *testing.M) {
	path, err := filepath.Abs("../../bin/collective")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve binary path: %v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "skipping acceptance tests: %s not built\n", path)
		os.Exit(0)
	}
	binary = path
	os.Exit(m.Run())
}
