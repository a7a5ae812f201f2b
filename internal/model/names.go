package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims surrounding whitespace and applies NFC normalization.
// Names are compared and stored in this form, so "é" written as one code
// point or as "e" plus a combining accent is the same name.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// DuplicatePropertyNames returns each property name that occurs more than
// once in props, in order of its second occurrence.
func DuplicatePropertyNames(props []Property) []string {
	seen := make(map[string]int, len(props))
	var dups []string
	for _, p := range props {
		name := NormalizeName(p.Name)
		seen[name]++
		if seen[name] == 2 {
			dups = append(dups, name)
		}
	}
	return dups
}
