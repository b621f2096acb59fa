package store

import (
	"os"
	fp "path/filepath"
)

func Load(name string) ([]byte, error) {
	return os.ReadFile(name) // want `direct filesystem operation os\.ReadFile is not allowed in this package \(use afero\.ReadFile instead\)`
}

func Entries(dir string) ([]string, error) {
	return fp.Glob(fp.Join(dir, "*.java")) // want `direct filesystem operation fp\.Glob is not allowed in this package \(use env\.Fs instead\)`
}

func Scratch() string {
	return os.TempDir()
}
