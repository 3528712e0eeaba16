package attributes

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// KeyPrefix is prepended to every generated target id
const KeyPrefix = "akeneo_"

var camelizeSep = regexp.MustCompile(`[-_\s]+(.)?`)

// Camelize trims and lowercases s, then removes every run of "-", "_" or
// whitespace and upper cases the character following it.
func Camelize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return camelizeSep.ReplaceAllStringFunc(s, func(m string) string {
		trimmed := strings.TrimLeftFunc(m, func(r rune) bool {
			return r == '-' || r == '_' || unicode.IsSpace(r)
		})
		return strings.ToUpper(trimmed)
	})
}

// GeneratedKey returns the default target id of an attribute code
func GeneratedKey(code string) string {
	return KeyPrefix + Camelize(code)
}

// ShadowKey returns the extra key of a select variation axis
func ShadowKey(code string) string {
	return GeneratedKey(code) + "_custom"
}

// Mapper resolves PIM attribute codes to target ids. Both mappings are keyed
// by the generated id of the code.
type Mapper struct {
	system map[string]string
	custom map[string]string
}

// NewMapper creates a mapper. nil maps are treated as empty.
func NewMapper(system, custom map[string]string) *Mapper {
	return &Mapper{system: system, custom: custom}
}

// TargetKey returns the target id of code. It returns false when the code is
// numeric or claimed by the system mapping, in which case it is not written
// as a custom attribute.
func (m *Mapper) TargetKey(code string) (string, bool) {
	if isNumeric(code) {
		return "", false
	}
	if m.IsSystemMapped(code) {
		return "", false
	}
	return m.CustomKey(code), true
}

// CustomKey returns the custom mapping of code or its generated key. The
// system mapping is not consulted.
func (m *Mapper) CustomKey(code string) string {
	generated := GeneratedKey(code)
	if mapped, ok := m.custom[generated]; ok && mapped != "" {
		return mapped
	}
	return generated
}

// IsSystemMapped reports whether the system mapping claims code
func (m *Mapper) IsSystemMapped(code string) bool {
	_, ok := m.system[GeneratedKey(code)]
	return ok
}

func isNumeric(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || strings.ContainsAny(code, "inx") {
		return false
	}
	_, err := strconv.ParseFloat(code, 64)
	return err == nil
}
