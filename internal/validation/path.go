package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

var dangerousPathChars = []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}

// ValidatePath rejects empty paths and paths carrying shell metacharacters.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	for _, char := range dangerousPathChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// ValidateOutputPath validates a file the tool writes to. "-" means stdout.
// Besides the ValidatePath checks, relative paths must stay below the
// working directory.
func ValidateOutputPath(path string) error {
	if path == "-" {
		return nil
	}
	if err := ValidatePath(path); err != nil {
		return err
	}

	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) ||
		strings.Contains(cleanPath, string(filepath.Separator)+".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	return nil
}
