// Package pipeline implements the patch pipeline: the planner fans goals
// into tasks, the executor synthesizes patches, the auditor stamps reviews,
// and the committer applies approved ops and feeds results back to the
// agent's chat channel.
package pipeline

import "strings"

// permanentMarkers are the error substrings that mean retrying cannot
// succeed: the task is dropped and the failure is reported on the chat
// channel instead of being redelivered.
var permanentMarkers = []string{
	"Validation failed",
	"Tool not allowed",
	"not found",
	"Invalid",
	"missing required",
}

// IsPermanent classifies an executor failure. Anything not recognizably
// permanent is treated as transient and nacked for redelivery.
func IsPermanent(errText string) bool {
	for _, marker := range permanentMarkers {
		if strings.Contains(errText, marker) {
			return true
		}
	}
	return false
}

// Guidance maps an error to a targeted hint for the agent's next attempt.
func Guidance(tool, errText string) string {
	switch {
	case strings.Contains(errText, "graph") && strings.Contains(errText, "not found"):
		return "The graph_id was missing or invalid. List graphs or read the active graph before retrying."
	case strings.Contains(errText, "prototype") && strings.Contains(errText, "not found"):
		return "The prototype_id does not exist. Create the prototype first or resolve it by name."
	case strings.Contains(errText, "instance") && strings.Contains(errText, "not found"):
		return "The instance_id does not exist in the target graph. Read the graph structure to find valid instance ids."
	case strings.Contains(errText, "edge") && strings.Contains(errText, "not found"):
		return "The edge_id does not exist. Read the graph structure to list its edges."
	case strings.Contains(errText, "missing required"):
		return "A required argument was missing. Check the tool's parameter list and retry with all required fields."
	case strings.Contains(errText, "Tool not allowed"):
		return "This tool is not part of the bridge surface. Use one of the registered tools."
	default:
		return ""
	}
}
