package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e", 'ж': "zh",
	'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o",
	'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "h", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "sch", 'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "ju",
	'я': "ja", 'і': "i", 'ў': "u",
}

// NormalizeEntity turns a bank display name into a stable identifier:
// lower case, spaces and dashes to underscores, Cyrillic transliterated, quotes dropped.
func NormalizeEntity(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r == ' ' || r == '-':
			b.WriteByte('_')
		case r == '\'' || r == '"' || r == '«' || r == '»' || r == '`':
		default:
			if lat, ok := cyrillic[r]; ok {
				b.WriteString(lat)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
