package local

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/opst/gbdxkit/pkg/ports"
	kpath "github.com/opst/gbdxkit/pkg/utils/path"
)

// Plan is a container invocation translated from ports of a task.
type Plan struct {
	RunId   string
	Type    string
	Image   string
	Command []string
	Env     []string
	Mounts  []Mount

	// OutputDirs maps directory output ports to their host directories.
	OutputDirs map[string]string

	// CreatedDirs are output directories created for this plan.
	CreatedDirs []string
}

// Spec converts the plan into a container spec.
func (p *Plan) Spec(memory int64) ContainerSpec {
	return ContainerSpec{
		Name:        containerName(p.Type, p.RunId),
		Image:       p.Image,
		Command:     p.Command,
		Env:         p.Env,
		Mounts:      p.Mounts,
		Labels:      labels(p),
		MemoryLimit: memory,
	}
}

// Plan translates ports into a container invocation.
//
// For each input port:
//
// - directory: the value is resolved to a host directory, trying in order
// (1) the path itself (relative paths are from the workdir) and
// (2) "<workdir>/inputs/<port>".
// An unset value tries (2) only. If no directory is found, it is an error,
// whether the port is required or not.
//
// - string: unset ports are skipped. Others are passed as task-input-port-<port>.
//
// For each directory output port, an unset port gets a new directory
// "<output root>/<type>/<run id>/<port>", and the port is set to it.
// A pre-assigned directory is mounted as is, without creating it.
// Ports are set only after all output directories are ready.
//
// Errors wrap ErrConfiguration.
func (t *Task) Plan() (*Plan, error) {
	p := &Plan{
		RunId:      uuid.NewString(),
		Type:       t.def.Name,
		Image:      t.image.Name(),
		Command:    t.Command(),
		Env:        []string{},
		Mounts:     []Mount{},
		OutputDirs: map[string]string{},
	}

	for _, port := range t.inputs.Ports() {
		switch port.Kind() {
		case ports.Directory:
			host, err := t.resolveInputDir(port)
			if err != nil {
				return nil, err
			}
			p.Mounts = append(p.Mounts, Mount{
				Source: host,
				Target: path.Join(InputRoot, port.Name()),
			})
		case ports.String:
			s, ok := port.Value().Text()
			if !ok {
				continue
			}
			p.Env = append(p.Env, InputEnvPrefix+port.Name()+"="+s)
		}
	}
	sort.Strings(p.Env)

	runRoot := filepath.Join(t.outputRoot, t.def.Name, p.RunId)
	fresh := []*ports.Port{}
	for _, port := range t.outputs.Ports() {
		if port.Kind() != ports.Directory {
			continue
		}

		host, assigned := port.Value().Path()
		if assigned {
			abs, err := kpath.Resolve(t.fromWorkdir(host))
			if err != nil {
				return nil, fmt.Errorf("%w: output port %s: %w", ErrConfiguration, port.Name(), err)
			}
			host = abs
		} else {
			host = filepath.Join(runRoot, port.Name())
			fresh = append(fresh, port)
		}

		p.OutputDirs[port.Name()] = host
		p.Mounts = append(p.Mounts, Mount{
			Source: host,
			Target: path.Join(OutputRoot, port.Name()),
		})
	}

	if err := p.createOutputDirs(runRoot, fresh); err != nil {
		return nil, err
	}
	for _, port := range fresh {
		if err := port.Set(ports.Dir(p.OutputDirs[port.Name()])); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// createOutputDirs creates new directories for ports under runRoot.
// On error, directories created so far are removed.
func (p *Plan) createOutputDirs(runRoot string, fresh []*ports.Port) (err error) {
	if len(fresh) == 0 {
		return nil
	}
	defer func() {
		if err == nil {
			return
		}
		for _, d := range p.CreatedDirs {
			os.Remove(d)
		}
		os.Remove(runRoot)
		p.CreatedDirs = nil
	}()

	if err := os.MkdirAll(runRoot, os.FileMode(0755)); err != nil {
		return fmt.Errorf("%w: output root: %w", ErrConfiguration, err)
	}
	for _, port := range fresh {
		host := p.OutputDirs[port.Name()]
		if err := os.Mkdir(host, os.FileMode(0777)); err != nil {
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("%w: output directory %s exists already", ErrConfiguration, host)
			}
			return fmt.Errorf("%w: output port %s: %w", ErrConfiguration, port.Name(), err)
		}
		p.CreatedDirs = append(p.CreatedDirs, host)
	}
	return nil
}

func (t *Task) fromWorkdir(p string) string {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "~") {
		return p
	}
	return filepath.Join(t.workdir, p)
}

func (t *Task) resolveInputDir(port *ports.Port) (string, error) {
	conventional := filepath.Join(t.workdir, "inputs", port.Name())

	candidates := []string{}
	given, set := port.Value().Path()
	if set && given != "" {
		candidates = append(candidates, t.fromWorkdir(given))
	}
	candidates = append(candidates, conventional)

	if found, ok := kpath.FirstDir(candidates...); ok {
		return found, nil
	}

	if !set {
		return "", fmt.Errorf(
			"%w: input port %s is not set, and %s is not found",
			ErrConfiguration, port.Name(), conventional,
		)
	}
	return "", fmt.Errorf(
		"%w: input port %s: directory is not found (tried: %s)",
		ErrConfiguration, port.Name(), strings.Join(candidates, ", "),
	)
}
