// Package checklist derives day-count-driven follow-up tasks from procedure
// timelines. Templates are configuration data: a named, ordered list of
// {day offset, text} entries keyed by the checklist key a procedure subpoint
// carries.
package checklist

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"
)

// Entry is one templated follow-up: propose the task once the procedure's
// day count reaches DayOffset.
type Entry struct {
	DayOffset int    `mapstructure:"day_offset"`
	Text      string `mapstructure:"text"`
}

// Registry maps checklist keys to their ordered template entries. Read-only
// after construction.
type Registry struct {
	templates map[string][]Entry
}

// NewRegistry builds a registry from a template map, sorting each template
// by day offset.
func NewRegistry(templates map[string][]Entry) *Registry {
	r := &Registry{templates: make(map[string][]Entry, len(templates))}
	for key, entries := range templates {
		sorted := append([]Entry(nil), entries...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].DayOffset < sorted[j].DayOffset
		})
		r.templates[key] = sorted
	}
	return r
}

// Load reads templates from a YAML file of the form:
//
//	templates:
//	  pacemaker:
//	    - day_offset: 1
//	      text: Check wound site
//	    - day_offset: 7
//	      text: Device check
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read checklist file: %w", err)
	}

	var raw struct {
		Templates map[string][]Entry `mapstructure:"templates"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("parse checklist file: %w", err)
	}
	if len(raw.Templates) == 0 {
		return nil, fmt.Errorf("checklist file %s defines no templates", path)
	}
	return NewRegistry(raw.Templates), nil
}

// DefaultTemplates returns the compiled-in templates used when no checklist
// file is configured.
func DefaultTemplates() map[string][]Entry {
	return map[string][]Entry{
		"pacemaker": {
			{DayOffset: 1, Text: "Check wound site"},
			{DayOffset: 7, Text: "Device check"},
		},
		"picc-line": {
			{DayOffset: 1, Text: "Confirm tip position on CXR"},
			{DayOffset: 3, Text: "Inspect insertion site"},
		},
		"iv-antibiotics": {
			{DayOffset: 2, Text: "Review antibiotic duration with micro"},
			{DayOffset: 5, Text: "Consider oral switch"},
		},
	}
}

// Template returns the entries for a key, or nil when the key is unknown.
func (r *Registry) Template(key string) []Entry {
	return r.templates[key]
}

// Keys returns the registered checklist keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.templates))
	for k := range r.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
