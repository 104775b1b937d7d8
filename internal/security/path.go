// Package security validates user-supplied file names.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrAbsolutePath  = errors.New("absolute paths are not allowed")
	ErrReservedName  = errors.New("reserved filename not allowed")
	ErrLeadingHyphen = errors.New("filename cannot start with hyphen")
	ErrNotImageFile  = errors.New("save path must end in .png, .jpg, .jpeg or .webp")

	windowsReservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}

	imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}
)

// ValidateSavePath rejects paths that could escape the output directory or
// clash with device names. The path must name an image file.
func ValidateSavePath(path string) error {
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}

	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") || strings.Contains(path, "..") {
		return ErrPathTraversal
	}

	base := filepath.Base(cleaned)
	ext := strings.ToLower(filepath.Ext(base))
	if windowsReservedNames[strings.TrimSuffix(strings.ToLower(base), ext)] {
		return ErrReservedName
	}
	if strings.HasPrefix(base, "-") {
		return ErrLeadingHyphen
	}
	if !imageExtensions[ext] {
		return ErrNotImageFile
	}
	return nil
}

// ResolveSavePath validates name and joins it onto dir.
func ResolveSavePath(dir, name string) (string, error) {
	if err := ValidateSavePath(name); err != nil {
		return "", fmt.Errorf("invalid save path %q: %w", name, err)
	}
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, filepath.Clean(name)), nil
}

// SanitizeFilename turns an arbitrary string into a safe single path
// element. It is applied to era ids before they reach a download name.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
		"\r", "", "\n", "",
	)
	sanitized := replacer.Replace(name)
	sanitized = strings.TrimLeft(sanitized, ".-")
	sanitized = strings.TrimRight(sanitized, ". ")

	if windowsReservedNames[strings.TrimSuffix(strings.ToLower(sanitized), filepath.Ext(sanitized))] {
		sanitized += "_"
	}
	if sanitized == "" {
		sanitized = "file"
	}
	return sanitized
}
