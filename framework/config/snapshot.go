package config

import "strconv"

// Snapshot is the flat view of the configuration: setting name to value.
// Booleans are "true" or "false".
type Snapshot map[string]string

// Has reports whether name is set to a non-empty value.
func (s Snapshot) Has(name string) bool { return s[name] != "" }

// Bool parses name as a boolean; unset or malformed values are false.
func (s Snapshot) Bool(name string) bool {
	b, _ := strconv.ParseBool(s[name])
	return b
}
