package testutil

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	uuidPattern     = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	rfc3339Pattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})`)
	dateTimePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)
)

// Normalize makes command output stable for golden comparison: root
// becomes <root>, run ids become <uuid>, timestamps become <time> and path
// separators become forward slashes.
func Normalize(s, root string) string {
	if root != "" {
		s = strings.ReplaceAll(s, root, "<root>")
		if resolved, err := filepath.EvalSymlinks(root); err == nil && resolved != root {
			s = strings.ReplaceAll(s, resolved, "<root>")
		}
	}
	s = uuidPattern.ReplaceAllString(s, "<uuid>")
	s = rfc3339Pattern.ReplaceAllString(s, "<time>")
	s = dateTimePattern.ReplaceAllString(s, "<time>")
	return strings.ReplaceAll(s, "\\", "/")
}
