package local

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	pathpkg "path"

	xe "github.com/opst/gbdxkit/pkg/errors"
	"github.com/opst/gbdxkit/pkg/ports"
	"github.com/opst/gbdxkit/pkg/utils/archive"
)

// artifacts larger than this are malformed.
const artifactLimit = 16 << 20

// Run runs the task once on the runtime, and blocks until the container stops.
//
// There is no timeout. ctx is passed to calls to the runtime, but waiting for
// the container to stop is not canceled by ctx.
//
// Errors in planning (invalid ports, no runtime) are returned before any container
// starts, wrapping ErrConfiguration. Missing or malformed status.json/ports.json
// are not errors: they are logged, and reported by StatusArtifact/PortsArtifact.
// Check Success after Run.
//
// The container is removed when Run returns.
func (t *Task) Run(ctx context.Context) error {
	t.status = Artifact[Status]{Path: StatusFile}
	t.portsResult = Artifact[map[string]string]{Path: PortsFile}
	t.exitCode = nil

	if t.runtime == nil {
		return fmt.Errorf("%w: no container runtime is given", ErrConfiguration)
	}

	plan, err := t.Plan()
	if err != nil {
		return err
	}
	spec := plan.Spec(t.memory)

	t.logger.Printf("creating container %s (image: %s)", spec.Name, spec.Image)
	id, err := t.runtime.Create(ctx, spec)
	if err != nil {
		return xe.WrapWithNote("create container", err)
	}
	defer func() {
		if err := t.runtime.Remove(context.WithoutCancel(ctx), id); err != nil {
			t.logger.Printf("failed to remove container %s: %s", spec.Name, err)
		}
	}()

	if err := t.runtime.Start(ctx, id); err != nil {
		return xe.WrapWithNote("start container", err)
	}
	code, err := t.runtime.Wait(context.WithoutCancel(ctx), id)
	if err != nil {
		return xe.WrapWithNote("wait container", err)
	}
	t.exitCode = &code

	t.status = extract(ctx, t.runtime, id, StatusFile, parseStatus)
	t.portsResult = extract(ctx, t.runtime, id, PortsFile, parsePorts)

	if err := t.reconcile(); err != nil {
		return err
	}

	t.printLogs(ctx, id, spec.Name)
	t.logger.Printf("container %s exited with code %d", spec.Name, code)
	if !t.status.Ok() {
		t.logger.Printf("status: %s", t.status.Message())
	}
	if !t.portsResult.Ok() {
		t.logger.Printf("output ports: %s", t.portsResult.Message())
	}
	return nil
}

// reconcile overwrites string output ports with values in ports.json.
//
// Names not declared, and names of directory ports, are ignored.
func (t *Task) reconcile() error {
	if !t.portsResult.Ok() {
		return nil
	}
	for name, value := range t.portsResult.Value {
		p, err := t.outputs.Get(name)
		if err != nil {
			t.logger.Printf("ports.json: %s is not an output port. ignored.", name)
			continue
		}
		if p.Kind() != ports.String {
			t.logger.Printf("ports.json: %s is a %s port. ignored.", name, p.Kind())
			continue
		}
		if err := p.Set(ports.Text(value)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Task) printLogs(ctx context.Context, id string, name string) {
	rc, err := t.runtime.Logs(ctx, id)
	if err != nil {
		t.logger.Printf("cannot read logs of %s: %s", name, err)
		return
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		t.logger.Printf("[%s] %s", name, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.logger.Printf("cannot read logs of %s: %s", name, err)
	}
}

func extract[T any](
	ctx context.Context, rt Runtime, id string, path string, parse func([]byte) (T, error),
) Artifact[T] {
	a := Artifact[T]{Path: path}

	rc, err := rt.CopyFrom(ctx, id, path)
	if err != nil {
		a.State = Absent
		a.Err = err
		return a
	}
	defer rc.Close()

	buf, err := archive.ReadFile(rc, pathpkg.Base(path), artifactLimit)
	if err != nil {
		if errors.Is(err, archive.ErrNotInArchive) {
			a.State = Absent
			a.Err = fmt.Errorf("%w: %w", ErrNotFound, err)
			return a
		}
		a.State = Malformed
		a.Err = err
		return a
	}
	io.Copy(io.Discard, rc)

	v, err := parse(buf)
	if err != nil {
		a.State = Malformed
		a.Err = err
		return a
	}
	a.State = Present
	a.Value = v
	return a
}
