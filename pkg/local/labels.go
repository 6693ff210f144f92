package local

import (
	"regexp"
	"strings"

	"github.com/opst/gbdxkit/pkg/buildtime"
)

const labelPrefix = "gbdx/local."

// labels of containers for local tasks, including "recommended labels".
//
// - "app.kubernetes.io/version"    : build version of gbdxkit.
//
// - "app.kubernetes.io/name"       : task type
//
// - "app.kubernetes.io/instance"   : container name
//
// - "app.kubernetes.io/managed-by" : "gbdxkit"
//
// - "gbdx/local.task_type"         : task type
//
// - "gbdx/local.run_id"            : run id
func labels(p *Plan) map[string]string {
	return map[string]string{
		"app.kubernetes.io/version":    buildtime.VERSION(),
		"app.kubernetes.io/name":       p.Type,
		"app.kubernetes.io/instance":   containerName(p.Type, p.RunId),
		"app.kubernetes.io/managed-by": "gbdxkit",

		labelPrefix + "task_type": p.Type,
		labelPrefix + "run_id":    p.RunId,
	}
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// containerName is "gbdx-<type>-<run id>", with characters docker refuses replaced.
func containerName(taskType string, runId string) string {
	t := strings.Trim(invalidNameChars.ReplaceAllString(taskType, "-"), "-._")
	if t == "" {
		return "gbdx-" + runId
	}
	return "gbdx-" + t + "-" + runId
}
