package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/graphweave/bridge/pkg/mirror"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/tools"
)

// Read tools produce a single readResponse op. The committer routes those
// payloads to the chat channel instead of the pending-actions outbox, so
// reads never round-trip through the UI.

func readOp(graphID, tool string, result any) models.Op {
	return models.Op{
		Type:    models.OpReadResponse,
		GraphID: graphID,
		Payload: map[string]any{"tool": tool, "result": result},
	}
}

// readErrorOp reports an external failure as data. Upstream outages are not
// task failures; the agent decides what to do with them.
func readErrorOp(tool string, err error) models.Op {
	return models.Op{
		Type:    models.OpReadResponse,
		Payload: map[string]any{"tool": tool, "error": err.Error()},
	}
}

func (e *Executor) execReadGraphStructure(args map[string]any) ([]models.Op, string, error) {
	graphID := strArg(args, "graph_id")
	if graphID == "" {
		graphID = e.mirror.ActiveGraphID()
	}
	if graphID == "" {
		return nil, "", errors.New("Invalid request: no active graph and no graph_id given")
	}
	structure := e.mirror.SemanticStructure(graphID, mirror.StructureOptions{
		IncludeDescriptions: boolArg(args, "include_descriptions", false),
		IncludeColors:       boolArg(args, "include_colors", false),
	})
	if structure == nil {
		return nil, "", fmt.Errorf("graph %q not found", graphID)
	}
	return []models.Op{readOp(graphID, tools.ReadGraphStructure, structure)}, graphID, nil
}

func (e *Executor) execGetEdgeInfo(args map[string]any) ([]models.Op, string, error) {
	edgeID := strArg(args, "edge_id")
	edge := e.mirror.EdgeByID(edgeID)
	if edge == nil {
		return nil, "", fmt.Errorf("edge %q not found", edgeID)
	}

	info := map[string]any{
		"id":             edge.ID,
		"name":           edge.Name,
		"sourceId":       edge.SourceID,
		"destinationId":  edge.DestinationID,
		"directionality": edge.Directionality(),
	}
	if src := e.mirror.InstanceByID(edge.SourceID); src != nil {
		if p := e.mirror.PrototypeByID(src.PrototypeID); p != nil {
			info["sourceName"] = p.Name
		}
	}
	if dst := e.mirror.InstanceByID(edge.DestinationID); dst != nil {
		if p := e.mirror.PrototypeByID(dst.PrototypeID); p != nil {
			info["destinationName"] = p.Name
		}
	}
	if len(edge.DefinitionNodeIDs) > 0 {
		var defs []map[string]any
		for _, id := range edge.DefinitionNodeIDs {
			if p := e.mirror.PrototypeByID(id); p != nil {
				defs = append(defs, map[string]any{"id": p.ID, "name": p.Name})
			}
		}
		info["definitions"] = defs
	}
	return []models.Op{readOp("", tools.GetEdgeInfo, info)}, "", nil
}

func (e *Executor) execGetNodeDefinition(args map[string]any) ([]models.Op, string, error) {
	protoID := strArg(args, "prototype_id")
	name := strArg(args, "name")
	if protoID == "" && name == "" {
		return nil, "", errors.New("Invalid request: prototype_id or name required")
	}

	proto := e.mirror.PrototypeByID(protoID)
	if proto == nil && name != "" {
		proto = e.mirror.PrototypeByName(name)
		if proto == nil {
			proto, _ = e.mirror.SimilarPrototype(name, e.fuzzyThreshold)
		}
	}
	if proto == nil {
		ref := protoID
		if ref == "" {
			ref = name
		}
		return nil, "", fmt.Errorf("prototype %q not found", ref)
	}
	return []models.Op{readOp("", tools.GetNodeDefinition, proto)}, "", nil
}

func (e *Executor) execSparqlQuery(ctx context.Context, args map[string]any) ([]models.Op, string, error) {
	timeout := time.Duration(intArg(args, "timeout_seconds", 30)) * time.Second
	if timeout > 45*time.Second {
		timeout = 45 * time.Second
	}
	result, err := e.external.Sparql(ctx, strArg(args, "endpoint"), strArg(args, "query"), timeout)
	if err != nil {
		return []models.Op{readErrorOp(tools.SparqlQuery, err)}, "", nil
	}
	return []models.Op{readOp("", tools.SparqlQuery, result)}, "", nil
}

func (e *Executor) execSemanticSearch(ctx context.Context, args map[string]any) ([]models.Op, string, error) {
	result, err := e.external.SemanticSearch(ctx, strArg(args, "query"), intArg(args, "limit", 10))
	if err != nil {
		return []models.Op{readErrorOp(tools.SemanticSearch, err)}, "", nil
	}
	return []models.Op{readOp("", tools.SemanticSearch, result)}, "", nil
}

// External performs the outbound read calls: SPARQL endpoints named per
// call and the workspace's configured semantic-search index.
type External struct {
	client         *http.Client
	searchEndpoint string
}

// NewExternal builds the external read client. An empty searchEndpoint
// disables semantic search.
func NewExternal(searchEndpoint string) *External {
	return &External{
		client:         &http.Client{Timeout: 45 * time.Second},
		searchEndpoint: searchEndpoint,
	}
}

// Sparql posts a query to the given endpoint and decodes the JSON results.
// The per-call timeout wins over the client default.
func (x *External) Sparql(ctx context.Context, endpoint, query string, timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build sparql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	return x.do(req, "sparql endpoint")
}

// SemanticSearch queries the configured index.
func (x *External) SemanticSearch(ctx context.Context, query string, limit int) (any, error) {
	if x.searchEndpoint == "" {
		return nil, errors.New("semantic search endpoint not configured")
	}

	u, err := url.Parse(x.searchEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return x.do(req, "semantic search")
}

func (x *External) do(req *http.Request, label string) (any, error) {
	resp, err := x.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", label, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", label, resp.StatusCode, truncate(string(body), 200))
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", label, err)
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
