package orchestrator

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Progress scale: item-by-item processing occupies the first 80%, report
// generation sits at 90, and the completion marker closes it at 100. The
// scripts only emit free text; these rules turn it into a number.
const (
	progressItemsCap  = 80
	progressPackaging = 90
	progressComplete  = 100
)

var itemRatioPattern = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

// infoMarkers are the log glyphs the automation scripts emit on lines meant
// for the user. Lines without one of these are dropped from the job log (but
// may still drive progress).
var infoMarkers = []string{
	"🔧", "📋", "📊", "🔍", "✅", "💾", "🎉", "📄", "🚀", "🔒", "💡",
}

// missingDependencySignatures identify stderr output caused by an uninstalled
// Python package.
var missingDependencySignatures = []string{
	"ModuleNotFoundError",
	"No module named",
	"ImportError",
}

// dependencyHint is the fixed remediation appended when a script fails on a
// missing package.
const dependencyHint = "💡 Missing Python dependency. Run: pip3 install -r requirements.txt"

// LineResult is the outcome of interpreting one stdout line.
type LineResult struct {
	// Progress is the updated completion percentage. Never lower than the
	// prior value; monotonicity is enforced here, not assumed from the script.
	Progress int
	// Entry is the log line to append, empty when the line is dropped.
	Entry string
}

// Interpret classifies one stdout line against the prior progress value.
// It is a pure function; all I/O stays with the caller.
//
// Rules, first match wins: an `items/total` ratio maps onto the 0-80 range; a
// combining/generating marker sets 90; a "completed successfully" marker sets
// 100. Independently, the line is kept for the log only when it carries an
// informational glyph.
func Interpret(line string, prior int) LineResult {
	res := LineResult{Progress: prior}

	// A ratio consumes the line only when it actually parses; digit runs too
	// large for an int fall through to the marker rules.
	if p, ok := ratioProgress(line); ok {
		if p > res.Progress {
			res.Progress = p
		}
	} else {
		switch lower := strings.ToLower(line); {
		case containsAny(lower, "combining", "generating"):
			if progressPackaging > res.Progress {
				res.Progress = progressPackaging
			}
		case strings.Contains(lower, "completed successfully"):
			res.Progress = progressComplete
		}
	}

	if containsAny(line, infoMarkers...) {
		res.Entry = line
	}
	return res
}

// InterpretStderr classifies one stderr line. Lines with an explicit error
// marker are kept, prefixed as errors; missing-dependency signatures also get
// a fixed install hint; everything else is dropped as interpreter noise.
func InterpretStderr(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	if containsAny(trimmed, missingDependencySignatures...) {
		return []string{errorEntry(trimmed), dependencyHint}
	}
	if strings.Contains(trimmed, "❌") || strings.Contains(strings.ToLower(trimmed), "error") {
		return []string{errorEntry(trimmed)}
	}
	return nil
}

func errorEntry(line string) string {
	if strings.Contains(line, "❌") {
		return line
	}
	return "❌ " + line
}

func ratioProgress(line string) (int, bool) {
	m := itemRatioPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	current, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	total, err := strconv.Atoi(m[2])
	if err != nil || total <= 0 {
		return 0, false
	}
	if current > total {
		current = total
	}
	p := int(math.Round(float64(current) / float64(total) * progressItemsCap))
	return p, true
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
