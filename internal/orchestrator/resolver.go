package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInputFileNotFound is returned when no stored upload matches a logical
// file name.
var ErrInputFileNotFound = errors.New("input file not found")

// ResolveInput maps a user-facing logical file name to a concrete path in the
// uploads directory.
//
// Uploads are stored under timestamp-prefixed names, so an exact lookup is
// impossible. A candidate matches when its name contains the logical name with
// the extension stripped; among matches the most recently modified wins, with
// lexical order of name as the deterministic tiebreak. This is a heuristic:
// two uploads sharing a base name can resolve ambiguously.
func ResolveInput(logicalName, storageDir string) (string, error) {
	base := strings.TrimSuffix(logicalName, filepath.Ext(logicalName))
	if base == "" {
		return "", fmt.Errorf("%w: %q", ErrInputFileNotFound, logicalName)
	}

	entries, err := os.ReadDir(storageDir)
	if err != nil {
		return "", fmt.Errorf("read uploads dir %s: %w", storageDir, err)
	}

	var (
		bestName string
		bestMod  time.Time
		found    bool
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), base) {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		if !found || newerCandidate(info.ModTime(), entry.Name(), bestMod, bestName) {
			bestName = entry.Name()
			bestMod = info.ModTime()
			found = true
		}
	}
	if !found {
		return "", fmt.Errorf("%w: %q", ErrInputFileNotFound, logicalName)
	}
	return filepath.Join(storageDir, bestName), nil
}

func newerCandidate(mod time.Time, name string, bestMod time.Time, bestName string) bool {
	if mod.After(bestMod) {
		return true
	}
	if mod.Equal(bestMod) {
		return name > bestName
	}
	return false
}
