package config

import "strings"

// DebugFlags toggles development behaviour through EV_DEBUG.
type DebugFlags uint

const (
	// DebugNoMatrix skips the Matrix component entirely.
	DebugNoMatrix DebugFlags = 1 << iota
)

var debugKeys = map[string]DebugFlags{
	"no-matrix": DebugNoMatrix,
}

const debugAll = DebugNoMatrix

// ParseDebugFlags parses a list of flag names separated by any of ":;, \t".
// "all" enables every flag; unknown names are ignored.
func ParseDebugFlags(s string) DebugFlags {
	var flags DebugFlags
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(":;, \t", r)
	})
	for _, field := range fields {
		key := strings.ToLower(field)
		if key == "all" {
			flags |= debugAll
			continue
		}
		flags |= debugKeys[key]
	}
	return flags
}

// Has reports whether flag is set.
func (f DebugFlags) Has(flag DebugFlags) bool {
	return f&flag != 0
}

// String lists the set flags.
func (f DebugFlags) String() string {
	var names []string
	for name, flag := range debugKeys {
		if f.Has(flag) {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}
