package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrInvalidOutputDir wraps every CheckOutputDir rejection.
var ErrInvalidOutputDir = errors.New("invalid output_dir")

// CleanName makes a clip or project title safe to use as a file name and in
// EDL comments. Control characters are dropped, other punctuation becomes
// '_', and the result is cut to maxRunes when maxRunes > 0.
func CleanName(s string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		default:
			return '_'
		}
	}, s)
	cleaned = strings.TrimSpace(cleaned)

	if maxRunes > 0 {
		if runes := []rune(cleaned); len(runes) > maxRunes {
			cleaned = string(runes[:maxRunes])
		}
	}
	return cleaned
}

// CheckOutputDir accepts only an existing, absolute, already-clean directory
// path that never climbs with "..".
func CheckOutputDir(dir string) error {
	reject := func(reason string) error {
		return fmt.Errorf("%w: %s", ErrInvalidOutputDir, reason)
	}

	switch {
	case strings.TrimSpace(dir) == "":
		return reject("required")
	case strings.Contains("/"+filepath.ToSlash(dir)+"/", "/../"):
		return reject("path traversal")
	case !filepath.IsAbs(dir):
		return reject("must be absolute")
	case filepath.Clean(dir) != dir:
		return reject("not a clean path")
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return reject("does not exist")
	}
	if err != nil {
		return reject(err.Error())
	}
	if !info.IsDir() {
		return reject("not a directory")
	}
	return nil
}
