package service

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	maxFileNameLength       = 255
	maxStoredFileNameLength = 200
	maxExtensionLength      = 10
)

var (
	unsafeFileNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	repeatedUnderscores = regexp.MustCompile(`_+`)
	languagePattern     = regexp.MustCompile(`^[a-z]{2,3}$`)

	reservedFileNames = map[string]struct{}{
		"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
		"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
		"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
	}
)

// SanitizeFileName strips directories from a client-supplied name and replaces
// anything outside [a-zA-Z0-9._-]. Reserved device names and overlong names are rejected.
func SanitizeFileName(name string) (string, error) {
	base := stripDirs(name)
	if strings.TrimSpace(base) == "" {
		return "", &ValidationError{Message: "file name is missing"}
	}
	if len(base) > maxFileNameLength {
		return "", &ValidationError{Message: "file name is longer than 255 characters"}
	}
	if len(fileExt(base)) > maxExtensionLength {
		return "", &ValidationError{Message: "file extension is not a supported audio format"}
	}
	stem := strings.TrimSuffix(base, fileExt(base))
	if _, reserved := reservedFileNames[strings.ToUpper(stem)]; reserved {
		return "", &ValidationError{Message: "file name " + base + " is reserved"}
	}

	clean := unsafeFileNameChars.ReplaceAllString(base, "_")
	clean = repeatedUnderscores.ReplaceAllString(clean, "_")
	clean = strings.Trim(clean, "_")
	if clean == "" {
		return "audio" + fileExt(base), nil
	}

	if len(clean) > maxStoredFileNameLength {
		ext := fileExt(clean)
		keep := max(maxStoredFileNameLength-len(ext), 0)
		clean = clean[:keep] + ext
	}
	return clean, nil
}

// NormalizeLanguage lower-cases a language hint and reports false when it is not a 2-3 letter code.
func NormalizeLanguage(raw string) (string, bool) {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if !languagePattern.MatchString(lang) {
		return "", false
	}
	return lang, true
}

func stripDirs(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// fileExt ignores a leading dot so ".mp3" has no extension.
func fileExt(name string) string {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return ""
	}
	return filepath.Ext(name)
}
