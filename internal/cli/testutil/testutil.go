// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/scopestar/internal/cli/output"
)

// ProjectFiles is the project written by SetupTestProject, keyed by path
// relative to the project root.
var ProjectFiles = map[string]string{
	"scopestar.yaml": `entry: main
search_path:
  - lib
`,
	"lib/account.star": `load("cpp", "magic")

class Account:
    """A bank account that reports when it is closed."""
    owner: str
    funds: int = 0
    public()
    def Account(owner, funds):
        this.owner = owner
        this.funds = funds
    def _Account():
        print("closing account of " + this.owner)
    def deposit(amount):
        this.funds += amount
    def balance():
        return this.funds
`,
	"main.star": `load("cpp", "magic")
load("account.star", "Account")

def main():
    acct = Account("alice", 10)
    acct.deposit(5)
    print("balance", acct.balance())
    return 0
`,
	"exit.star": `def main():
    return 3
`,
	"peek.star": `load("cpp", "magic")
load("account.star", "Account")

def main():
    acct = Account("bob", 1)
    return acct.funds
`,
	"broken.star": `load("cpp", "magic")

class Broken:
    def Broken():
        pass
    def Broken(x):
        pass
`,
}

// SetupTestProject writes ProjectFiles into a temporary directory and
// returns its path.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range ProjectFiles {
		path := filepath.Join(tmpDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
	return tmpDir
}

// Chdir changes the working directory for the duration of the test.
func Chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a plain text renderer, as when piped.
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertLinesInOrder checks that each expected substring occurs in s after
// the previous one.
func AssertLinesInOrder(t *testing.T, s string, expected ...string) {
	t.Helper()
	rest := s
	for _, want := range expected {
		i := strings.Index(rest, want)
		if i < 0 {
			t.Errorf("%q not found in order in output:\n%s", want, s)
			return
		}
		rest = rest[i+len(want):]
	}
}
