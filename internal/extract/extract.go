// Package extract pulls the source code block out of a raw model completion.
package extract

import (
	"errors"
	"regexp"
	"strings"
)

// DefaultLanguage is the fence tag accepted when none is configured.
const DefaultLanguage = "python"

// ErrNoCodeBlockFound is returned when the completion holds no fenced block
// tagged with the extractor's language. It is an expected outcome, for
// example when the model answers with prose only.
var ErrNoCodeBlockFound = errors.New("no code block found")

// Extractor finds fenced code blocks tagged with a single language.
type Extractor struct {
	language string
	pattern  *regexp.Regexp
}

// New creates an Extractor for the given fence language tag.
// An empty language means DefaultLanguage.
func New(language string) *Extractor {
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}
	return &Extractor{
		language: language,
		pattern:  regexp.MustCompile("(?is)```" + regexp.QuoteMeta(language) + "\\b(.*?)```"),
	}
}

// Language returns the fence tag this extractor matches.
func (e *Extractor) Language() string {
	return e.language
}

// Extract returns the trimmed content of the first non-empty block tagged
// with the extractor's language. Untagged blocks and blocks tagged with any
// other language are ignored.
func (e *Extractor) Extract(raw string) (string, error) {
	for _, m := range e.pattern.FindAllStringSubmatch(raw, -1) {
		if code := strings.TrimSpace(m[1]); code != "" {
			return code, nil
		}
	}
	return "", ErrNoCodeBlockFound
}

// Extract is a shortcut for New(DefaultLanguage).Extract(raw).
func Extract(raw string) (string, error) {
	return defaultExtractor.Extract(raw)
}

var defaultExtractor = New(DefaultLanguage)
