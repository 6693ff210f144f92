package ports_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/opst/gbdxkit/pkg/cmp"
	"github.com/opst/gbdxkit/pkg/ports"
	"github.com/opst/gbdxkit/pkg/utils/try"
	"gopkg.in/yaml.v3"
)

func descriptors() []ports.Descriptor {
	return []ports.Descriptor{
		{Name: "data", Type: ports.Directory, Required: true, Description: "input imagery"},
		{Name: "bands", Type: ports.String},
		{Name: "mask", Type: "DIRECTORY"},
	}
}

func TestNewList(t *testing.T) {
	t.Run("it has one port per descriptor, in declaration order", func(t *testing.T) {
		testee := try.To(ports.NewInputs(descriptors())).OrFatal(t)

		if !cmp.SliceEq(testee.Names(), []string{"data", "bands", "mask"}) {
			t.Errorf("unexpected names: %v", testee.Names())
		}
		if testee.Direction() != ports.Input {
			t.Errorf("unexpected direction: %s", testee.Direction())
		}
		mask := try.To(testee.Get("mask")).OrFatal(t)
		if mask.Kind() != ports.Directory {
			t.Errorf("kind is not normalized: %s", mask.Kind())
		}
		for _, p := range testee.Ports() {
			if p.IsSet() {
				t.Errorf("port %s is set at construction", p.Name())
			}
		}
	})

	type When struct {
		descs []ports.Descriptor
	}
	refused := func(when When) func(*testing.T) {
		return func(t *testing.T) {
			_, err := ports.NewOutputs(when.descs)
			if !errors.Is(err, ports.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		}
	}

	t.Run("duplicated names are refused", refused(When{
		descs: []ports.Descriptor{
			{Name: "a", Type: ports.String},
			{Name: "a", Type: ports.Directory},
		},
	}))
	t.Run("unknown type is refused", refused(When{
		descs: []ports.Descriptor{{Name: "a", Type: "integer"}},
	}))
	t.Run("empty name is refused", refused(When{
		descs: []ports.Descriptor{{Name: "", Type: ports.String}},
	}))
}

func TestList_SetAndGet(t *testing.T) {
	t.Run("for all declared names, an assigned value is read back", func(t *testing.T) {
		testee := try.To(ports.NewInputs(descriptors())).OrFatal(t)
		assigned := map[string]ports.Value{
			"data":  ports.Dir("/tmp/data"),
			"bands": ports.Text("1,2,3"),
			"mask":  ports.Dir(""),
		}
		for name, v := range assigned {
			if err := testee.Set(name, v); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}
		for name, v := range assigned {
			actual := try.To(testee.Value(name)).OrFatal(t)
			if !actual.Equal(v) {
				t.Errorf("%s: (actual, expected) = (%v, %v)", name, actual, v)
			}
		}
	})

	t.Run("assignment mutates the existing port", func(t *testing.T) {
		testee := try.To(ports.NewInputs(descriptors())).OrFatal(t)
		before := try.To(testee.Get("bands")).OrFatal(t)
		if err := testee.SetText("bands", "4"); err != nil {
			t.Fatal(err)
		}
		after := try.To(testee.Get("bands")).OrFatal(t)
		if before != after {
			t.Error("port object is replaced")
		}
		if s, ok := before.Value().Text(); !ok || s != "4" {
			t.Errorf("value is not mutated: %v", before.Value())
		}
	})

	t.Run("assigning an undeclared name always fails", func(t *testing.T) {
		testee := try.To(ports.NewOutputs(descriptors())).OrFatal(t)
		err := testee.SetText("nope", "x")

		var unknown *ports.ErrUnknownPort
		if !errors.As(err, &unknown) {
			t.Fatalf("unexpected error: %v", err)
		}
		if unknown.Name != "nope" || unknown.Direction != ports.Output {
			t.Errorf("unexpected detail: %+v", unknown)
		}
		if !errors.Is(err, ports.ErrConfiguration) {
			t.Errorf("it is not a configuration error: %v", err)
		}
		if testee.Has("nope") {
			t.Error("undeclared port is added")
		}
	})

	t.Run("reading an undeclared name fails", func(t *testing.T) {
		testee := try.To(ports.NewInputs(descriptors())).OrFatal(t)
		if _, err := testee.Get("nope"); !errors.Is(err, ports.ErrConfiguration) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("a value of other kind is refused and the port keeps its value", func(t *testing.T) {
		testee := try.To(ports.NewInputs(descriptors())).OrFatal(t)
		if err := testee.SetDir("data", "/a"); err != nil {
			t.Fatal(err)
		}
		if err := testee.SetText("data", "/b"); !errors.Is(err, ports.ErrConfiguration) {
			t.Errorf("unexpected error: %v", err)
		}
		if v := try.To(testee.Value("data")).OrFatal(t); !v.Equal(ports.Dir("/a")) {
			t.Errorf("value is changed: %v", v)
		}
	})
}

func TestValue(t *testing.T) {
	t.Run("unset and empty path are different", func(t *testing.T) {
		if ports.Unset().IsSet() {
			t.Error("unset is set")
		}
		empty := ports.Dir("")
		if !empty.IsSet() {
			t.Error("empty path is unset")
		}
		if p, ok := empty.Path(); !ok || p != "" {
			t.Errorf("unexpected path: (%s, %v)", p, ok)
		}
		if empty.Equal(ports.Unset()) {
			t.Error("empty path equals to unset")
		}
	})

	t.Run("string value is not a path", func(t *testing.T) {
		if _, ok := ports.Text("x").Path(); ok {
			t.Error("string value has path")
		}
	})
}

func TestList_Missing(t *testing.T) {
	testee := try.To(ports.NewInputs(descriptors())).OrFatal(t)
	if !cmp.SliceEq(testee.Missing(), []string{"data"}) {
		t.Errorf("unexpected missing: %v", testee.Missing())
	}
	if err := testee.SetDir("data", "/x"); err != nil {
		t.Fatal(err)
	}
	if len(testee.Missing()) != 0 {
		t.Errorf("unexpected missing: %v", testee.Missing())
	}
}

func TestDescriptor_Unmarshal(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var d []ports.Descriptor
		if err := json.Unmarshal(
			[]byte(`[{"name":"data","type":"Directory","required":true}]`), &d,
		); err != nil {
			t.Fatal(err)
		}
		if len(d) != 1 || d[0].Type != ports.Directory || !d[0].Required {
			t.Errorf("unexpected: %+v", d)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var d []ports.Descriptor
		if err := yaml.Unmarshal([]byte("- name: bands\n  type: string\n"), &d); err != nil {
			t.Fatal(err)
		}
		if len(d) != 1 || d[0].Type != ports.String {
			t.Errorf("unexpected: %+v", d)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		var d []ports.Descriptor
		err := json.Unmarshal([]byte(`[{"name":"x","type":"float"}]`), &d)
		if !errors.Is(err, ports.ErrConfiguration) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
