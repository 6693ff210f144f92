package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/opst/gbdxkit/pkg/ports"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition is returned when a task definition is malformed or unsupported.
var ErrInvalidDefinition = errors.New("invalid task definition")

// ContainerDocker is the only container type which can run locally.
const ContainerDocker = "DOCKER"

// Definition is a task type registered in the task registry.
type Definition struct {
	Name        string               `json:"name" yaml:"name"`
	Version     string               `json:"version,omitempty" yaml:"version,omitempty"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  DefinitionProperties `json:"properties,omitempty" yaml:"properties,omitempty"`

	InputPortDescriptors  []ports.Descriptor    `json:"inputPortDescriptors" yaml:"inputPortDescriptors"`
	OutputPortDescriptors []ports.Descriptor    `json:"outputPortDescriptors" yaml:"outputPortDescriptors"`
	ContainerDescriptors  []ContainerDescriptor `json:"containerDescriptors" yaml:"containerDescriptors"`
}

type DefinitionProperties struct {
	IsPublic bool `json:"isPublic,omitempty" yaml:"isPublic,omitempty"`

	// Timeout in seconds.
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

type ContainerDescriptor struct {
	Type       string              `json:"type" yaml:"type"`
	Command    string              `json:"command,omitempty" yaml:"command,omitempty"`
	Properties ContainerProperties `json:"properties" yaml:"properties"`
}

type ContainerProperties struct {
	Image  string `json:"image,omitempty" yaml:"image,omitempty"`
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// Validate checks that the definition can build port lists.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidDefinition)
	}
	if _, err := ports.NewInputs(d.InputPortDescriptors); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.Name, err)
	}
	if _, err := ports.NewOutputs(d.OutputPortDescriptors); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.Name, err)
	}
	return nil
}

// DockerContainer returns the only container descriptor of d, which should be a Docker container.
//
// Definitions with no, or more than one, container descriptors are refused,
// and so are ones with non-Docker descriptors.
func (d Definition) DockerContainer() (ContainerDescriptor, name.Reference, error) {
	switch len(d.ContainerDescriptors) {
	case 0:
		return ContainerDescriptor{}, nil, fmt.Errorf(
			"%w: %s has no container descriptors", ErrInvalidDefinition, d.Name,
		)
	case 1:
	default:
		return ContainerDescriptor{}, nil, fmt.Errorf(
			"%w: %s has %d container descriptors, but only single-container tasks are supported",
			ErrInvalidDefinition, d.Name, len(d.ContainerDescriptors),
		)
	}

	cd := d.ContainerDescriptors[0]
	if !strings.EqualFold(cd.Type, ContainerDocker) {
		return ContainerDescriptor{}, nil, fmt.Errorf(
			"%w: %s has container type %q, but only %s is supported",
			ErrInvalidDefinition, d.Name, cd.Type, ContainerDocker,
		)
	}
	ref, err := name.ParseReference(cd.Properties.Image)
	if err != nil {
		return ContainerDescriptor{}, nil, fmt.Errorf(
			"%w: %s has invalid image %q: %w", ErrInvalidDefinition, d.Name, cd.Properties.Image, err,
		)
	}
	return cd, ref, nil
}

// ParseDefinition parses task definition in JSON.
func ParseDefinition(buf []byte) (Definition, error) {
	var d Definition
	if err := json.Unmarshal(buf, &d); err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// LoadDefinition reads a task definition file.
//
// Files named *.json are parsed as JSON, and others as YAML.
func LoadDefinition(path string) (Definition, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseDefinition(buf)
	}

	var d Definition
	if err := yaml.Unmarshal(buf, &d); err != nil {
		return Definition{}, fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, path, err)
	}
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	return d, nil
}
