package fsutil

import (
	"path/filepath"
	"strings"
)

const maxNameLen = 128

// OutputName derives a file name for a report or plot from an input path:
// the base name without its extension, reduced to ASCII letters, digits,
// dot, underscore and dash, with ext appended. Runs of other characters
// become a single underscore. An input that reduces to nothing yields
// "unnamed".
func OutputName(input, ext string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	underscore := false
	for _, r := range base {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
			underscore = false
		case !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		name = "unnamed"
	}
	return name + ext
}
