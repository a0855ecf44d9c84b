package classify

import (
	"fmt"
	"regexp"
	"strings"

	"dentarch/internal/config"
)

// Patterns holds the compiled folder and filename tables the classifier
// matches against. Every expression is compiled case-insensitive and matched
// as a substring of the name.
type Patterns struct {
	cbctFolders        []*regexp.Regexp
	iosFolders         []*regexp.Regexp
	upper              []*regexp.Regexp
	lower              []*regexp.Regexp
	teleradiography    []*regexp.Regexp
	orthopantomography []*regexp.Regexp
}

// CompilePatterns builds the pattern set from configuration. Invalid
// expressions are rejected here so the classifier never compiles at match
// time.
func CompilePatterns(cfg config.Patterns) (*Patterns, error) {
	p := &Patterns{}
	for _, table := range []struct {
		name    string
		sources []string
		dest    *[]*regexp.Regexp
	}{
		{"cbct_folders", cfg.CBCTFolders, &p.cbctFolders},
		{"ios_folders", cfg.IOSFolders, &p.iosFolders},
		{"upper", cfg.Upper, &p.upper},
		{"lower", cfg.Lower, &p.lower},
		{"teleradiography", cfg.Teleradiography, &p.teleradiography},
		{"orthopantomography", cfg.Orthopantomography, &p.orthopantomography},
	} {
		for _, source := range table.sources {
			compiled, err := regexp.Compile("(?i)" + source)
			if err != nil {
				return nil, fmt.Errorf("compile %s pattern %q: %w", table.name, source, err)
			}
			*table.dest = append(*table.dest, compiled)
		}
	}
	return p, nil
}

func matchAny(patterns []*regexp.Regexp, name string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// MatchUpper reports whether a filename carries an upper-jaw keyword.
func (p *Patterns) MatchUpper(name string) bool { return matchAny(p.upper, name) }

// MatchLower reports whether a filename carries a lower-jaw keyword.
func (p *Patterns) MatchLower(name string) bool { return matchAny(p.lower, name) }

// IsIgnored reports whether a filename is on the system-ignore list:
// dotfiles, desktop metadata droppings, and macOS custom-icon stubs whose
// name is a control character.
func IsIgnored(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return true
	}
	switch strings.ToLower(name) {
	case "thumbs.db", "desktop.ini", "icon\r":
		return true
	}
	for _, r := range name {
		if r < 0x20 {
			return true
		}
	}
	return false
}
