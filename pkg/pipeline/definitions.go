package pipeline

import (
	"fmt"

	"github.com/graphweave/bridge/pkg/graph"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/tools"
)

// execDefineConnections walks the graph's edges and synthesizes definition
// prototypes for named edges that lack one, up to the requested limit.
// Generic labels ("connects", "relates to") are skipped unless skip_generic
// is turned off.
func (e *Executor) execDefineConnections(args map[string]any, meta models.Meta) ([]models.Op, string, error) {
	graphID := strArg(args, "graph_id")
	if e.mirror.GraphByID(graphID) == nil {
		return nil, "", fmt.Errorf("graph %q not found", graphID)
	}
	limit := intArg(args, "limit", 10)
	skipGeneric := boolArg(args, "skip_generic", true)

	_, edges := e.mirror.GraphContents(graphID)

	var ops []models.Op
	defByName := map[string]string{}
	defined, skipped := 0, 0
	for _, edge := range edges {
		if defined >= limit {
			break
		}
		if len(edge.DefinitionNodeIDs) > 0 || edge.Name == "" {
			continue
		}
		if skipGeneric && graph.IsGenericLabel(edge.Name) {
			skipped++
			continue
		}

		defID, defOp := e.resolveDefinition(edge.Name, defByName, meta)
		if defOp != nil {
			ops = append(ops, *defOp)
		}
		ops = append(ops, models.Op{
			Type:              models.OpUpdateEdgeDefinition,
			GraphID:           graphID,
			EdgeID:            edge.ID,
			DefinitionNodeIDs: []string{defID},
		})
		defined++
	}

	ops = append(ops, models.Op{
		Type:    models.OpReadResponse,
		GraphID: graphID,
		Payload: map[string]any{
			"tool":    tools.DefineConnections,
			"defined": defined,
			"skipped": skipped,
		},
	})
	return ops, graphID, nil
}
