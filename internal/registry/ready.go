package registry

import "regexp"

var (
	// readyPattern matches the dev server banner, e.g. "  ➜  Local:   http://localhost:5173/".
	readyPattern = regexp.MustCompile(`Local:\s+(https?://\S+)`)
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
)

// MatchReadyURL extracts the local URL from a line of tool output.
// ANSI color sequences are stripped before matching.
func MatchReadyURL(line string) (string, bool) {
	if len(line) == 0 {
		return "", false
	}
	m := readyPattern.FindStringSubmatch(ansiPattern.ReplaceAllString(line, ""))
	if m == nil {
		return "", false
	}
	return m[1], true
}
