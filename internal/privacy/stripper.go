// Package privacy sanitises force text before it leaves the process.
package privacy

import (
	"regexp"
	"strings"
	"unicode"
)

// withheldRegex matches <private>...</private> and <analyst-notes>...</analyst-notes>
// blocks. Analysts use both to keep sourcing notes out of the clustering engine.
var withheldRegex = regexp.MustCompile(`(?s)<(private|analyst-notes)>.*?</(?:private|analyst-notes)>`)

// StripWithheld removes every withheld block. Unclosed tags are left as text.
func StripWithheld(text string) string {
	return withheldRegex.ReplaceAllStringFunc(text, func(block string) string {
		// The regexp cannot back-reference, so reject mismatched pairs here.
		open := block[1:strings.IndexByte(block, '>')]
		if !strings.HasSuffix(block, "</"+open+">") {
			return block
		}
		return ""
	})
}

// Clean strips withheld blocks, drops control characters and collapses
// whitespace runs to one space. Use it on any force text sent to the engine.
func Clean(text string) string {
	text = StripWithheld(text)

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
