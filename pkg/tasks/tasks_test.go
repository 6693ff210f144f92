package tasks_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opst/gbdxkit/pkg/cmp"
	"github.com/opst/gbdxkit/pkg/ports"
	"github.com/opst/gbdxkit/pkg/tasks"
	"github.com/opst/gbdxkit/pkg/utils/try"
)

const aopJSON = `{
	"name": "AOP_Strip_Processor",
	"version": "0.0.3",
	"description": "orthorectify strips",
	"properties": {"isPublic": true, "timeout": 7200},
	"inputPortDescriptors": [
		{"name": "data", "type": "directory", "required": true},
		{"name": "enable_acomp", "type": "string"}
	],
	"outputPortDescriptors": [
		{"name": "data", "type": "directory"},
		{"name": "log", "type": "directory"}
	],
	"containerDescriptors": [
		{"type": "DOCKER", "properties": {"image": "tdgp/aop:1.2", "domain": "raid"}}
	]
}`

const saveJSON = `{
	"name": "StageDataToS3",
	"inputPortDescriptors": [
		{"name": "data", "type": "directory", "required": true},
		{"name": "destination", "type": "string", "required": true}
	],
	"outputPortDescriptors": [],
	"containerDescriptors": [{"type": "DOCKER", "properties": {"image": "tdgp/stagetos3"}}]
}`

func TestParseDefinition(t *testing.T) {
	t.Run("it parses a registry document", func(t *testing.T) {
		def := try.To(tasks.ParseDefinition([]byte(aopJSON))).OrFatal(t)
		if def.Name != "AOP_Strip_Processor" || def.Properties.Timeout != 7200 {
			t.Errorf("unexpected definition: %+v", def)
		}
		if len(def.InputPortDescriptors) != 2 || def.InputPortDescriptors[0].Type != ports.Directory {
			t.Errorf("unexpected inputs: %+v", def.InputPortDescriptors)
		}
		cd, ref := func() (tasks.ContainerDescriptor, string) {
			cd, ref, err := def.DockerContainer()
			if err != nil {
				t.Fatal(err)
			}
			return cd, ref.Context().RepositoryStr()
		}()
		if cd.Properties.Domain != "raid" || ref != "tdgp/aop" {
			t.Errorf("unexpected container: %+v, %s", cd, ref)
		}
	})

	t.Run("it refuses duplicated port names", func(t *testing.T) {
		_, err := tasks.ParseDefinition([]byte(`{
			"name": "x",
			"inputPortDescriptors": [{"name": "a", "type": "string"}, {"name": "a", "type": "string"}]
		}`))
		if !errors.Is(err, tasks.ErrInvalidDefinition) || !errors.Is(err, ports.ErrConfiguration) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestDefinition_DockerContainer(t *testing.T) {
	type When struct {
		containers []tasks.ContainerDescriptor
	}
	refused := func(when When) func(*testing.T) {
		return func(t *testing.T) {
			def := tasks.Definition{Name: "x", ContainerDescriptors: when.containers}
			if _, _, err := def.DockerContainer(); !errors.Is(err, tasks.ErrInvalidDefinition) {
				t.Errorf("unexpected error: %v", err)
			}
		}
	}
	docker := tasks.ContainerDescriptor{Type: "DOCKER", Properties: tasks.ContainerProperties{Image: "a/b:c"}}

	t.Run("no containers", refused(When{}))
	t.Run("multiple containers", refused(When{containers: []tasks.ContainerDescriptor{docker, docker}}))
	t.Run("non-docker container", refused(When{containers: []tasks.ContainerDescriptor{
		{Type: "GPU_SCRIPT", Properties: tasks.ContainerProperties{Image: "a/b:c"}},
	}}))
	t.Run("invalid image", refused(When{containers: []tasks.ContainerDescriptor{
		{Type: "DOCKER", Properties: tasks.ContainerProperties{Image: "UPPER/case::x"}},
	}}))
	t.Run("docker type is case insensitive", func(t *testing.T) {
		def := tasks.Definition{Name: "x", ContainerDescriptors: []tasks.ContainerDescriptor{
			{Type: "docker", Properties: tasks.ContainerProperties{Image: "a/b:c"}},
		}}
		if _, _, err := def.DockerContainer(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		p := filepath.Join(dir, "task.yaml")
		content := `
name: local_ndvi
inputPortDescriptors:
  - name: image
    type: directory
    required: true
outputPortDescriptors:
  - name: ndvi
    type: directory
  - name: mean
    type: string
containerDescriptors:
  - type: DOCKER
    command: python /ndvi.py
    properties:
      image: example/ndvi:latest
`
		if err := os.WriteFile(p, []byte(content), os.FileMode(0644)); err != nil {
			t.Fatal(err)
		}
		def := try.To(tasks.LoadDefinition(p)).OrFatal(t)
		if def.Name != "local_ndvi" || def.ContainerDescriptors[0].Command != "python /ndvi.py" {
			t.Errorf("unexpected definition: %+v", def)
		}
		if def.OutputPortDescriptors[1].Type != ports.String {
			t.Errorf("unexpected outputs: %+v", def.OutputPortDescriptors)
		}
	})

	t.Run("json", func(t *testing.T) {
		p := filepath.Join(dir, "task.json")
		if err := os.WriteFile(p, []byte(aopJSON), os.FileMode(0644)); err != nil {
			t.Fatal(err)
		}
		def := try.To(tasks.LoadDefinition(p)).OrFatal(t)
		if def.Name != "AOP_Strip_Processor" {
			t.Errorf("unexpected definition: %+v", def)
		}
	})
}

func TestWorkflow_Generate(t *testing.T) {
	aop := try.To(tasks.ParseDefinition([]byte(aopJSON))).OrFatal(t)
	save := try.To(tasks.ParseDefinition([]byte(saveJSON))).OrFatal(t)

	t.Run("it wires outputs into inputs by source", func(t *testing.T) {
		t1 := try.To(tasks.NewTask(aop, tasks.WithName("aop"), tasks.WithImpersonation())).OrFatal(t)
		if err := t1.Inputs().SetDir("data", "s3://bucket/raw/"); err != nil {
			t.Fatal(err)
		}
		if err := t1.Inputs().SetText("enable_acomp", "true"); err != nil {
			t.Fatal(err)
		}
		if err := t1.Persist("log", "logs/aop"); err != nil {
			t.Fatal(err)
		}

		t2 := try.To(tasks.NewTask(save, tasks.WithName("save"), tasks.WithTimeout(time.Hour))).OrFatal(t)
		if err := t2.Connect("data", try.To(t1.Output("data")).OrFatal(t)); err != nil {
			t.Fatal(err)
		}
		if err := t2.Inputs().SetText("destination", "s3://bucket/out"); err != nil {
			t.Fatal(err)
		}

		buf := try.To(tasks.NewWorkflow("strip", t1, t2).Generate()).OrFatal(t)

		var actual tasks.Document
		if err := json.Unmarshal(buf, &actual); err != nil {
			t.Fatal(err)
		}
		if actual.Name != "strip" || len(actual.Tasks) != 2 {
			t.Fatalf("unexpected document: %s", buf)
		}

		first := actual.Tasks[0]
		if first.TaskType != "AOP_Strip_Processor" || !first.ImpersonationAllowed || first.Timeout != 7200 {
			t.Errorf("unexpected task: %+v", first)
		}
		if !cmp.SliceContentEq(first.Inputs, []tasks.InputDocument{
			{Name: "data", Value: "s3://bucket/raw/"},
			{Name: "enable_acomp", Value: "true"},
		}) {
			t.Errorf("unexpected inputs: %+v", first.Inputs)
		}
		if !cmp.SliceContentEq(first.Outputs, []tasks.OutputDocument{
			{Name: "data"},
			{Name: "log", Persist: true, PersistLocation: "logs/aop"},
		}) {
			t.Errorf("unexpected outputs: %+v", first.Outputs)
		}
		if len(first.ContainerDescriptors) != 1 || first.ContainerDescriptors[0].Properties.Domain != "raid" {
			t.Errorf("unexpected domain: %+v", first.ContainerDescriptors)
		}

		second := actual.Tasks[1]
		if second.Timeout != 3600 {
			t.Errorf("unexpected timeout: %d", second.Timeout)
		}
		if !cmp.SliceContentEq(second.Inputs, []tasks.InputDocument{
			{Name: "data", Source: "aop:data"},
			{Name: "destination", Value: "s3://bucket/out"},
		}) {
			t.Errorf("unexpected inputs: %+v", second.Inputs)
		}
	})

	t.Run("unset required input is refused", func(t *testing.T) {
		t1 := try.To(tasks.NewTask(aop)).OrFatal(t)
		_, err := tasks.NewWorkflow("x", t1).Generate()
		if !errors.Is(err, ports.ErrConfiguration) || !strings.Contains(err.Error(), "data") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("a reference to a task out of the workflow is refused", func(t *testing.T) {
		t1 := try.To(tasks.NewTask(aop)).OrFatal(t)
		if err := t1.Inputs().SetDir("data", "s3://x"); err != nil {
			t.Fatal(err)
		}
		t2 := try.To(tasks.NewTask(save)).OrFatal(t)
		if err := t2.Connect("data", try.To(t1.Output("data")).OrFatal(t)); err != nil {
			t.Fatal(err)
		}
		if err := t2.Inputs().SetText("destination", "s3://y"); err != nil {
			t.Fatal(err)
		}
		if _, err := tasks.NewWorkflow("x", t2).Generate(); !errors.Is(err, tasks.ErrInvalidWiring) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("kind mismatch on connect is refused", func(t *testing.T) {
		t1 := try.To(tasks.NewTask(aop)).OrFatal(t)
		t2 := try.To(tasks.NewTask(save)).OrFatal(t)
		if err := t2.Connect("destination", try.To(t1.Output("data")).OrFatal(t)); !errors.Is(err, tasks.ErrInvalidWiring) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("circular connection is refused", func(t *testing.T) {
		t1 := try.To(tasks.NewTask(aop, tasks.WithName("a"))).OrFatal(t)
		t2 := try.To(tasks.NewTask(aop, tasks.WithName("b"))).OrFatal(t)
		if err := t1.Connect("data", try.To(t2.Output("data")).OrFatal(t)); err != nil {
			t.Fatal(err)
		}
		if err := t2.Connect("data", try.To(t1.Output("data")).OrFatal(t)); err != nil {
			t.Fatal(err)
		}
		if _, err := tasks.NewWorkflow("x", t1, t2).Generate(); !errors.Is(err, tasks.ErrInvalidWiring) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty workflow is refused", func(t *testing.T) {
		if _, err := tasks.NewWorkflow("x").Generate(); !errors.Is(err, tasks.ErrInvalidWiring) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestWorkflow_Order(t *testing.T) {
	aop := try.To(tasks.ParseDefinition([]byte(aopJSON))).OrFatal(t)

	chain := func(t *testing.T, names ...string) []*tasks.Task {
		t.Helper()
		ret := []*tasks.Task{}
		for i, n := range names {
			task := try.To(tasks.NewTask(aop, tasks.WithName(n))).OrFatal(t)
			if 0 < i {
				if err := task.Connect("data", try.To(ret[i-1].Output("data")).OrFatal(t)); err != nil {
					t.Fatal(err)
				}
			}
			ret = append(ret, task)
		}
		return ret
	}
	names := func(ts []*tasks.Task) []string {
		ret := []string{}
		for _, t := range ts {
			ret = append(ret, t.Name)
		}
		return ret
	}

	t.Run("it puts upstream tasks first", func(t *testing.T) {
		ts := chain(t, "iso", "sieve", "clump")
		lone := try.To(tasks.NewTask(aop, tasks.WithName("lone"))).OrFatal(t)

		got := try.To(tasks.NewWorkflow("x", ts[2], lone, ts[1], ts[0]).Order()).OrFatal(t)
		want := []string{"iso", "sieve", "clump", "lone"}
		if !cmp.SliceEq(names(got), want) {
			t.Errorf("order: (actual, expected) = (%v, %v)", names(got), want)
		}
	})

	t.Run("it refuses a task missing from the workflow", func(t *testing.T) {
		ts := chain(t, "iso", "sieve", "clump")
		_, err := tasks.NewWorkflow("x", ts[2], ts[0]).Order()
		if !errors.Is(err, tasks.ErrInvalidWiring) || !strings.Contains(err.Error(), "sieve") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestNewTask_Name(t *testing.T) {
	def := try.To(tasks.ParseDefinition([]byte(saveJSON))).OrFatal(t)
	a := try.To(tasks.NewTask(def)).OrFatal(t)
	b := try.To(tasks.NewTask(def)).OrFatal(t)
	if !strings.HasPrefix(a.Name, "StageDataToS3_") || a.Name == b.Name {
		t.Errorf("unexpected names: %s, %s", a.Name, b.Name)
	}
}
