// Package mock provides a container runtime for tests of local tasks.
//
// By default, it behaves as a runtime whose containers exit with ExitCode,
// print Log, and have Files in their filesystem.
// Each method can be replaced by setting a function to Impl.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/opst/gbdxkit/pkg/local"
	"github.com/opst/gbdxkit/pkg/utils/archive"
)

type Runtime struct {
	t *testing.T

	// Files in containers, by absolute path.
	Files    map[string][]byte
	ExitCode int64
	Log      string

	Impl struct {
		Create   func(ctx context.Context, spec local.ContainerSpec) (string, error)
		Start    func(ctx context.Context, id string) error
		Wait     func(ctx context.Context, id string) (int64, error)
		Logs     func(ctx context.Context, id string) (io.ReadCloser, error)
		CopyFrom func(ctx context.Context, id string, path string) (io.ReadCloser, error)
		Remove   func(ctx context.Context, id string) error
	}

	Calls struct {
		Create   []local.ContainerSpec
		Start    []string
		Wait     []string
		Logs     []string
		CopyFrom []string
		Remove   []string
	}
}

var _ local.Runtime = &Runtime{}

func New(t *testing.T) *Runtime {
	return &Runtime{t: t, Files: map[string][]byte{}}
}

func (m *Runtime) Create(ctx context.Context, spec local.ContainerSpec) (string, error) {
	m.t.Helper()
	m.Calls.Create = append(m.Calls.Create, spec)
	if m.Impl.Create != nil {
		return m.Impl.Create(ctx, spec)
	}
	return fmt.Sprintf("container-%d", len(m.Calls.Create)), nil
}

func (m *Runtime) Start(ctx context.Context, id string) error {
	m.t.Helper()
	m.Calls.Start = append(m.Calls.Start, id)
	if m.Impl.Start != nil {
		return m.Impl.Start(ctx, id)
	}
	return nil
}

func (m *Runtime) Wait(ctx context.Context, id string) (int64, error) {
	m.t.Helper()
	m.Calls.Wait = append(m.Calls.Wait, id)
	if m.Impl.Wait != nil {
		return m.Impl.Wait(ctx, id)
	}
	return m.ExitCode, nil
}

func (m *Runtime) Logs(ctx context.Context, id string) (io.ReadCloser, error) {
	m.t.Helper()
	m.Calls.Logs = append(m.Calls.Logs, id)
	if m.Impl.Logs != nil {
		return m.Impl.Logs(ctx, id)
	}
	return io.NopCloser(strings.NewReader(m.Log)), nil
}

func (m *Runtime) CopyFrom(ctx context.Context, id string, path string) (io.ReadCloser, error) {
	m.t.Helper()
	m.Calls.CopyFrom = append(m.Calls.CopyFrom, path)
	if m.Impl.CopyFrom != nil {
		return m.Impl.CopyFrom(ctx, id, path)
	}
	content, ok := m.Files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", local.ErrNotFound, path)
	}
	buf := new(bytes.Buffer)
	name := path[strings.LastIndex(path, "/")+1:]
	if err := archive.WriteFile(buf, name, content); err != nil {
		m.t.Fatal(err)
	}
	return io.NopCloser(buf), nil
}

func (m *Runtime) Remove(ctx context.Context, id string) error {
	m.t.Helper()
	m.Calls.Remove = append(m.Calls.Remove, id)
	if m.Impl.Remove != nil {
		return m.Impl.Remove(ctx, id)
	}
	return nil
}
