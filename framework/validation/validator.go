package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ── Types ────────────────────────────────────────────────────────────────────

// Errors collects failed rules per setting name.
type Errors struct {
	Bag map[string][]string `json:"errors"`
}

func (e *Errors) add(field, msg string) {
	if e.Bag == nil {
		e.Bag = make(map[string][]string)
	}
	e.Bag[field] = append(e.Bag[field], msg)
}

// Has returns true if there are any errors.
func (e *Errors) Has() bool { return len(e.Bag) > 0 }

// First returns the first error for a field.
func (e *Errors) First(field string) string {
	if msgs, ok := e.Bag[field]; ok && len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Fields returns the failing field names, sorted.
func (e *Errors) Fields() []string {
	out := make([]string, 0, len(e.Bag))
	for f := range e.Bag {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (e *Errors) Error() string {
	parts := make([]string, 0, len(e.Bag))
	for _, f := range e.Fields() {
		parts = append(parts, e.Bag[f]...)
	}
	return strings.Join(parts, " ")
}

// ── Validator ────────────────────────────────────────────────────────────────

// Rules maps a setting name to a pipe-separated rule string, e.g.
//
//	Rules{"OWNER_PHONE": "required|numeric", "ZAPI_CLIENT_TOKEN": "required_without:ZAPI_SECURITY_TOKEN"}
type Rules map[string]string

// Validator checks a flat map of settings against Rules.
type Validator struct {
	data   map[string]string
	rules  Rules
	errors *Errors
	ran    bool
}

// Make creates a Validator over data.
func Make(data map[string]string, rules Rules) *Validator {
	return &Validator{data: data, rules: rules, errors: &Errors{}}
}

// Fails runs validation and returns true if any rule fails.
func (v *Validator) Fails() bool {
	if !v.ran {
		v.validate()
		v.ran = true
	}
	return v.errors.Has()
}

// Passes runs validation and returns true if all rules pass.
func (v *Validator) Passes() bool { return !v.Fails() }

// Errors returns the error bag. Call Fails or Passes first.
func (v *Validator) Errors() *Errors { return v.errors }

// Err returns nil when the data passes, otherwise the error bag.
func (v *Validator) Err() error {
	if v.Fails() {
		return v.errors
	}
	return nil
}

// ── Core validation loop ─────────────────────────────────────────────────────

type rule func(v *Validator, field, value, param string) string

var rules = map[string]rule{
	"required": func(_ *Validator, field, value, _ string) string {
		if strings.TrimSpace(value) == "" {
			return fmt.Sprintf("The %s setting is required.", field)
		}
		return ""
	},
	"required_without": func(v *Validator, field, value, param string) string {
		if strings.TrimSpace(value) != "" {
			return ""
		}
		for _, other := range strings.Split(param, ",") {
			if strings.TrimSpace(v.data[strings.TrimSpace(other)]) != "" {
				return ""
			}
		}
		return fmt.Sprintf("The %s setting is required when %s is not present.", field, param)
	},
	"numeric": func(_ *Validator, field, value, _ string) string {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Sprintf("The %s must be a number.", field)
		}
		return ""
	},
	"integer": func(_ *Validator, field, value, _ string) string {
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Sprintf("The %s must be an integer.", field)
		}
		return ""
	},
	"boolean": func(_ *Validator, field, value, _ string) string {
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Sprintf("The %s must be true or false.", field)
		}
		return ""
	},
	"accepted": func(_ *Validator, field, value, _ string) string {
		if b, err := strconv.ParseBool(value); err != nil || !b {
			return fmt.Sprintf("The %s must be enabled.", field)
		}
		return ""
	},
	"url": func(_ *Validator, field, value, _ string) string {
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Sprintf("The %s must be a valid URL.", field)
		}
		return ""
	},
	"min": func(_ *Validator, field, value, param string) string {
		n, _ := strconv.Atoi(param)
		if len([]rune(value)) < n {
			return fmt.Sprintf("The %s must be at least %d characters.", field, n)
		}
		return ""
	},
	"in": func(_ *Validator, field, value, param string) string {
		for _, a := range strings.Split(param, ",") {
			if strings.TrimSpace(a) == value {
				return ""
			}
		}
		return fmt.Sprintf("The selected %s is invalid.", field)
	},
	"regex": func(_ *Validator, field, value, param string) string {
		re, err := regexp.Compile(param)
		if err != nil || !re.MatchString(value) {
			return fmt.Sprintf("The %s format is invalid.", field)
		}
		return ""
	},
}

func (v *Validator) validate() {
	for field, ruleStr := range v.rules {
		value := v.data[field]

		for _, r := range strings.Split(ruleStr, "|") {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			name, param, _ := strings.Cut(r, ":")

			// "sometimes" skips the remaining rules for an absent value.
			if name == "sometimes" {
				if value == "" {
					break
				}
				continue
			}

			fn, ok := rules[name]
			if !ok {
				v.errors.add(field, fmt.Sprintf("Unknown rule %q on %s.", name, field))
				break
			}
			if msg := fn(v, field, value, param); msg != "" {
				v.errors.add(field, msg)
				break // bail on first failure per field
			}
		}
	}
}
