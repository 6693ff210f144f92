// Package ports models the named input/output slots of a task.
//
// A task type declares its ports with Descriptors. A List built from them has
// exactly one Port per declared name, and that set never changes: assigning to an
// undeclared name fails with *ErrUnknownPort, and assigning to a declared name
// mutates the existing Port.
//
// Port values are tagged: a Value is either unset, a string, or a directory path.
// "unset" and "empty path" are different states.
package ports

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrConfiguration is the root of errors caused by invalid port wiring.
var ErrConfiguration = errors.New("invalid port configuration")

// Kind is the type of a port.
type Kind string

const (
	String    Kind = "string"
	Directory Kind = "directory"
)

// ParseKind parses the type name of a port descriptor. It is case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case String:
		return String, nil
	case Directory:
		return Directory, nil
	default:
		return "", fmt.Errorf("%w: unknown port type: %q", ErrConfiguration, s)
	}
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Direction tells whether ports are inputs or outputs of a task.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Descriptor declares a port.
type Descriptor struct {
	Name        string `json:"name" yaml:"name"`
	Type        Kind   `json:"type" yaml:"type"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Value is a port value: unset, a string, or a directory path.
//
// The zero Value is unset.
type Value struct {
	kind Kind
	text string
}

// Unset is the value of ports which nobody has assigned.
func Unset() Value {
	return Value{}
}

// Text is a value for string ports.
func Text(s string) Value {
	return Value{kind: String, text: s}
}

// Dir is a value for directory ports. An empty path is a value, not unset.
func Dir(path string) Value {
	return Value{kind: Directory, text: path}
}

func (v Value) IsSet() bool {
	return v.kind != ""
}

// Kind returns the kind of value. It is empty for unset.
func (v Value) Kind() Kind {
	return v.kind
}

// Text returns the string and true when v is a string value.
func (v Value) Text() (string, bool) {
	return v.text, v.kind == String
}

// Path returns the path and true when v is a directory value.
func (v Value) Path() (string, bool) {
	return v.text, v.kind == Directory
}

func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.text == o.text
}

func (v Value) String() string {
	switch v.kind {
	case String:
		return fmt.Sprintf("%q", v.text)
	case Directory:
		return "dir:" + v.text
	default:
		return "(unset)"
	}
}

// Port is a named and typed slot. Its descriptor is fixed; only the value changes.
type Port struct {
	desc  Descriptor
	value Value
}

func (p *Port) Name() string {
	return p.desc.Name
}

func (p *Port) Kind() Kind {
	return p.desc.Type
}

func (p *Port) Required() bool {
	return p.desc.Required
}

func (p *Port) Description() string {
	return p.desc.Description
}

func (p *Port) Descriptor() Descriptor {
	return p.desc
}

func (p *Port) Value() Value {
	return p.value
}

func (p *Port) IsSet() bool {
	return p.value.IsSet()
}

// Set assigns v. Unset clears the port. A value of other kind is refused.
func (p *Port) Set(v Value) error {
	if v.IsSet() && v.kind != p.desc.Type {
		return fmt.Errorf(
			"%w: port %s is %s, but %s value is given",
			ErrConfiguration, p.desc.Name, p.desc.Type, v.kind,
		)
	}
	p.value = v
	return nil
}

// ErrUnknownPort is returned on access to a name which is not declared.
type ErrUnknownPort struct {
	Name      string
	Direction Direction
	Declared  []string
}

func (e *ErrUnknownPort) Error() string {
	return fmt.Sprintf(
		"%s: %s port %q is not declared (declared: %s)",
		ErrConfiguration, e.Direction, e.Name, strings.Join(e.Declared, ", "),
	)
}

func (e *ErrUnknownPort) Unwrap() error {
	return ErrConfiguration
}

// List is a fixed-schema mapping from port name to Port.
type List struct {
	direction Direction
	names     []string
	ports     map[string]*Port
}

// NewInputs builds a List of input ports.
func NewInputs(descs []Descriptor) (*List, error) {
	return newList(Input, descs)
}

// NewOutputs builds a List of output ports.
func NewOutputs(descs []Descriptor) (*List, error) {
	return newList(Output, descs)
}

func newList(dir Direction, descs []Descriptor) (*List, error) {
	l := &List{
		direction: dir,
		names:     make([]string, 0, len(descs)),
		ports:     make(map[string]*Port, len(descs)),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: %s port without name", ErrConfiguration, dir)
		}
		if _, dup := l.ports[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s port %q is declared twice", ErrConfiguration, dir, d.Name)
		}
		kind, err := ParseKind(string(d.Type))
		if err != nil {
			return nil, fmt.Errorf("%s port %q: %w", dir, d.Name, err)
		}
		d.Type = kind
		l.names = append(l.names, d.Name)
		l.ports[d.Name] = &Port{desc: d}
	}
	return l, nil
}

func (l *List) Direction() Direction {
	return l.direction
}

// Names returns declared names in declaration order.
func (l *List) Names() []string {
	return slices.Clone(l.names)
}

// Ports returns ports in declaration order.
func (l *List) Ports() []*Port {
	ret := make([]*Port, 0, len(l.names))
	for _, n := range l.names {
		ret = append(ret, l.ports[n])
	}
	return ret
}

func (l *List) Has(name string) bool {
	_, ok := l.ports[name]
	return ok
}

// Get returns the port named name.
func (l *List) Get(name string) (*Port, error) {
	p, ok := l.ports[name]
	if !ok {
		return nil, &ErrUnknownPort{Name: name, Direction: l.direction, Declared: l.Names()}
	}
	return p, nil
}

// Set assigns v to the port named name.
func (l *List) Set(name string, v Value) error {
	p, err := l.Get(name)
	if err != nil {
		return err
	}
	return p.Set(v)
}

// SetText is Set(name, Text(s)).
func (l *List) SetText(name string, s string) error {
	return l.Set(name, Text(s))
}

// SetDir is Set(name, Dir(path)).
func (l *List) SetDir(name string, path string) error {
	return l.Set(name, Dir(path))
}

// Value returns the value of the port named name.
func (l *List) Value(name string) (Value, error) {
	p, err := l.Get(name)
	if err != nil {
		return Value{}, err
	}
	return p.Value(), nil
}

// Missing returns names of required ports which are unset.
func (l *List) Missing() []string {
	var ret []string
	for _, p := range l.Ports() {
		if p.Required() && !p.IsSet() {
			ret = append(ret, p.Name())
		}
	}
	return ret
}
