package export

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var titler = cases.Title(language.Und)

// DisplayName turns a folder-derived patient ID into the display name sent
// to the archive: separators become spaces, diacritics are stripped, and
// the result is title-cased. "rossi_mario" becomes "Rossi Mario".
func DisplayName(id string) string {
	cleaned, _, err := transform.String(stripMarks, id)
	if err != nil {
		cleaned = id
	}
	cleaned = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(cleaned)
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return id
	}
	return titler.String(strings.ToLower(strings.Join(fields, " ")))
}
