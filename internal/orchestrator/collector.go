package orchestrator

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// resultExtensions is the allow-list of artifact types the scripts produce.
var resultExtensions = map[string]bool{
	".txt":  true,
	".csv":  true,
	".xlsx": true,
	".xls":  true,
	".pdf":  true,
}

// resultMarker must appear in an artifact's name for it to be collected. All
// scripts name their output `<kind>_report_<timestamp>.<ext>`.
const resultMarker = "report"

// CollectResults scans the shared results directory for artifacts produced by
// a finished run and returns their names, sorted.
//
// When the scan yields nothing, a single synthesized name built from the
// service kind and timestamp is returned instead. That name does not
// necessarily exist on disk; consumers serving result files must tolerate a
// listed name being absent and degrade to a log-text response.
func CollectResults(resultsDir, serviceKind string, now time.Time) []string {
	var names []string
	entries, err := os.ReadDir(resultsDir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			lower := strings.ToLower(name)
			if strings.Contains(lower, resultMarker) && resultExtensions[ext(lower)] {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return []string{FallbackResultName(serviceKind, now)}
	}
	sort.Strings(names)
	return names
}

// FallbackResultName builds the synthesized artifact name used when the
// results scan comes up empty.
func FallbackResultName(serviceKind string, now time.Time) string {
	return fmt.Sprintf("%s_report_%s.txt", serviceKind, now.Format("20060102_150405"))
}

func ext(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
