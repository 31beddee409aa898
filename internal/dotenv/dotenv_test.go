package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadFileSetsVariables(t *testing.T) {
	path := writeEnvFile(t, `
# comment line
PLAIN=value
export EXPORTED=with-export
QUOTED="double quoted"
SINGLE='single quoted'
SPACED =  padded
EMPTY=
`)
	for _, key := range []string{"PLAIN", "EXPORTED", "QUOTED", "SINGLE", "SPACED", "EMPTY"} {
		t.Setenv(key, "sentinel")
		os.Unsetenv(key)
	}

	if err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	want := map[string]string{
		"PLAIN":    "value",
		"EXPORTED": "with-export",
		"QUOTED":   "double quoted",
		"SINGLE":   "single quoted",
		"SPACED":   "padded",
		"EMPTY":    "",
	}
	for key, expected := range want {
		if got := os.Getenv(key); got != expected {
			t.Errorf("%s = %q, want %q", key, got, expected)
		}
	}
}

func TestLoadFileKeepsExistingEnv(t *testing.T) {
	path := writeEnvFile(t, "KEEP_ME=from-file\n")
	t.Setenv("KEEP_ME", "from-env")

	if err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := os.Getenv("KEEP_ME"); got != "from-env" {
		t.Errorf("KEEP_ME = %q, want from-env", got)
	}
}

func TestLoadFileMissingFile(t *testing.T) {
	if err := LoadFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
}

func TestLoadFileSkipsMalformedLines(t *testing.T) {
	path := writeEnvFile(t, "no equals sign here\n=no-key\nVALID=yes\n")
	t.Setenv("VALID", "sentinel")
	os.Unsetenv("VALID")

	if err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := os.Getenv("VALID"); got != "yes" {
		t.Errorf("VALID = %q, want yes", got)
	}
}
