package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SanitizeTitle converts a video title into a safe filename stem.
// Characters that are invalid on common filesystems and control characters
// become underscores; surrounding whitespace and trailing dots are dropped;
// the result is capped at 200 characters. An empty result falls back to
// "video".
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case r < 32:
			b.WriteByte('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	s = strings.TrimRight(s, ".")
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "video"
	}
	return s
}

// tempSuffixes are the extensions yt-dlp appends to in-progress downloads.
// An interrupted run leaves these behind; they are never a finished result.
var tempSuffixes = []string{".part", ".ytdl", ".temp"}

func isTempFile(name string) bool {
	for _, s := range tempSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// FindByPrefix returns the first completed regular file in dir whose name
// starts with prefix, or "" when none exists. Download templates put role
// prefixes in front of an extension yt-dlp chooses, so callers locate the
// result by prefix rather than exact name. In-progress temp files (.part,
// .ytdl, .temp) are skipped: a temp file is not the expected output.
func FindByPrefix(dir, prefix string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() || isTempFile(e.Name()) {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// PurgePrefix removes every regular file in dir whose name starts with
// prefix. Used to clear stale partial downloads before a fresh attempt so
// FindByPrefix cannot pick up leftovers from a previous run.
func PurgePrefix(dir, prefix string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}

// NextAvailablePath returns a path in dir built from stem and ext that does
// not collide with an existing file, appending " (1)", " (2)", ... to the
// stem as needed. ext includes the leading dot.
func NextAvailablePath(dir, stem, ext string) string {
	p := filepath.Join(dir, stem+ext)
	if !fileExists(p) {
		return p
	}
	for i := 1; ; i++ {
		p = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if !fileExists(p) {
			return p
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FileExists reports whether path exists as a regular file.
func FileExists(path string) bool {
	return fileExists(path)
}

// EnsureDir creates the directory (and parents) if missing.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// RemoveIfExists deletes path, ignoring not-exist errors.
func RemoveIfExists(path string) {
	if path == "" {
		return
	}
	os.Remove(path)
}

// LookPath resolves name to an absolute binary path, or "" when not found.
func LookPath(name string) string {
	p, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return p
}
