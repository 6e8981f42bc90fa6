package acceptance

import (
	"os/exec"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	cmd := exec.Command(binary, "version")
	cmd.Dir = t.TempDir()
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to execute version command: %v\n%s", err, output)
	}

	outputStr := strings.TrimSpace(string(output))
	if !strings.Contains(outputStr, `"version"`) || !strings.Contains(outputStr, `"gitCommit"`) {
		t.Errorf("Version output should contain version and gitCommit fields. Got: %s", outputStr)
	}
}

func TestVersionCommandHelp(t *testing.T) {
	cmd := exec.Command(binary, "version", "--help")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to execute version --help: %v", err)
	}

	if !strings.Contains(strings.ToLower(string(output)), "usage") {
		t.Errorf("Version help should contain usage information. Got: %s", output)
	}
}

func TestVersionCommandShort(t *testing.T) {
	cmd := exec.Command(binary, "version", "--short")
	cmd.Dir = t.TempDir()
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to execute version --short: %v\n%s", err, output)
	}

	if !strings.HasPrefix(string(output), "collective ") {
		t.Errorf("Short version should start with the binary name. Got: %s", output)
	}
}
