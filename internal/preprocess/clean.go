package preprocess

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/PuerkitoBio/goquery"
)

var (
	unicodeEscapeRe = regexp.MustCompile(`(?:\\u[0-9a-fA-F]{4})+`)
	tagRe           = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)[^>]*>`)

	boldStarRe       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicStarRe     = regexp.MustCompile(`\*(.*?)\*`)
	boldUnderscoreRe = regexp.MustCompile(`__(.*?)__`)
	italicUnderRe    = regexp.MustCompile(`_(.*?)_`)
)

// inline tags do not separate words when stripped
var inlineTags = map[string]bool{
	"a": true, "b": true, "i": true, "em": true, "strong": true,
	"span": true, "u": true, "small": true, "code": true, "mark": true,
}

// CleanText decodes escapes, strips markup and collapses whitespace.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = decodeUnicodeEscapes(text)
	text = stripHTML(text)

	text = boldStarRe.ReplaceAllString(text, "$1")
	text = italicStarRe.ReplaceAllString(text, "$1")
	text = boldUnderscoreRe.ReplaceAllString(text, "$1")
	text = italicUnderRe.ReplaceAllString(text, "$1")

	return strings.Join(strings.Fields(text), " ")
}

// decodeUnicodeEscapes turns literal \uXXXX runs (including surrogate pairs) into text.
func decodeUnicodeEscapes(text string) string {
	if !strings.Contains(text, `\u`) {
		return text
	}
	return unicodeEscapeRe.ReplaceAllStringFunc(text, func(run string) string {
		units := make([]uint16, 0, len(run)/6)
		for i := 0; i+6 <= len(run); i += 6 {
			v, err := strconv.ParseUint(run[i+2:i+6], 16, 16)
			if err != nil {
				return run
			}
			units = append(units, uint16(v))
		}
		return string(utf16.Decode(units))
	})
}

func stripHTML(text string) string {
	if !tagRe.MatchString(text) {
		return html.UnescapeString(text)
	}
	spaced := tagRe.ReplaceAllStringFunc(text, func(tag string) string {
		m := tagRe.FindStringSubmatch(tag)
		if len(m) > 1 && inlineTags[strings.ToLower(m[1])] {
			return tag
		}
		return " " + tag + " "
	})
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(spaced))
	if err != nil {
		return text
	}
	return doc.Text()
}
