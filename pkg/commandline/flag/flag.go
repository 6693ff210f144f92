// Package flag has flag.Value types for the gbdx commandline.
package flag

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrFlagValue = errors.New("invalid flag value")

type Argslice []string

func (s *Argslice) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, " ")
}

func (s *Argslice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Assignment is a pair in the form of NAME=VALUE.
type Assignment struct {
	Name  string
	Value string
}

func (a Assignment) String() string {
	return a.Name + "=" + a.Value
}

func ParseAssignment(s string) (Assignment, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Assignment{}, fmt.Errorf("%w: should be NAME=VALUE: %s", ErrFlagValue, s)
	}
	return Assignment{Name: name, Value: value}, nil
}

// Assignments is a repeatable flag of NAME=VALUE.
//
// Later assignments to the same name win.
type Assignments []Assignment

func (as *Assignments) String() string {
	if as == nil || len(*as) == 0 {
		return ""
	}
	ss := make([]string, 0, len(*as))
	for _, a := range *as {
		ss = append(ss, a.String())
	}
	return strings.Join(ss, " ")
}

func (as *Assignments) Set(v string) error {
	a, err := ParseAssignment(v)
	if err != nil {
		return err
	}
	*as = append(*as, a)
	return nil
}

// Map returns assignments as a map, and their names in the order of first appearance.
func (as *Assignments) Map() (map[string]string, []string) {
	m := map[string]string{}
	names := []string{}
	if as == nil {
		return m, names
	}
	for _, a := range *as {
		if _, ok := m[a.Name]; !ok {
			names = append(names, a.Name)
		}
		m[a.Name] = a.Value
	}
	return m, names
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Date is a point of time, given in RFC3339 or its shorter forms.
//
// Timezone defaults to UTC.
type Date struct {
	t     time.Time
	isSet bool
}

func (d *Date) String() string {
	if d == nil || !d.isSet {
		return ""
	}
	return d.t.Format(time.RFC3339)
}

func (d *Date) Set(v string) error {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			d.t = t
			d.isSet = true
			return nil
		}
	}
	return fmt.Errorf("%w: not a date: %s", ErrFlagValue, v)
}

// Time returns the date, or zero time if it is not set.
func (d *Date) Time() time.Time {
	if d == nil || !d.isSet {
		return time.Time{}
	}
	return d.t
}

type OptionalDuration struct {
	d     time.Duration
	isSet bool
}

func (t *OptionalDuration) String() string {
	if t == nil || !t.isSet {
		return ""
	}
	return t.d.String()
}

func (t *OptionalDuration) Set(v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("%w: negative duration: %s", ErrFlagValue, v)
	}
	t.d = d
	t.isSet = true
	return nil
}

func (t *OptionalDuration) Duration() *time.Duration {
	if t == nil || !t.isSet {
		return nil
	}
	return &t.d
}

// Choice is a string flag which accepts only one of the options, case insensitive.
type Choice struct {
	options []string
	value   string
}

// OneOf creates a Choice. The first option is the default.
func OneOf(options ...string) *Choice {
	c := &Choice{options: options}
	if 0 < len(options) {
		c.value = options[0]
	}
	return c
}

func (c *Choice) String() string {
	if c == nil {
		return ""
	}
	return c.value
}

func (c *Choice) Set(v string) error {
	i := slices.IndexFunc(c.options, func(o string) bool { return strings.EqualFold(o, v) })
	if i < 0 {
		return fmt.Errorf("%w: %s is not one of %s", ErrFlagValue, v, strings.Join(c.options, "|"))
	}
	c.value = c.options[i]
	return nil
}

func (c *Choice) Value() string {
	if c == nil {
		return ""
	}
	return c.value
}
