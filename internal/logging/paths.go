package logging

import (
	"os"
	"path/filepath"
	"strconv"
)

// LogFileName is the base name of the active log file.
const LogFileName = "tinyrerank.log"

// DefaultLogDir returns ~/.tinyrerank/logs, falling back to the temp
// directory when there is no home directory.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tinyrerank", "logs")
	}
	return filepath.Join(home, ".tinyrerank", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), LogFileName)
}

// RotatedPath returns the path of the n-th rotated file for path.
func RotatedPath(path string, n int) string {
	if n <= 0 {
		return path
	}
	return path + "." + strconv.Itoa(n)
}
