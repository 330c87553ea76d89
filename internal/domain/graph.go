package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeType identifies the kind of node behind a prefixed graph node ID.
type NodeType string

const (
	NodeTypeMemory       NodeType = "memory"
	NodeTypeEntity       NodeType = "entity"
	NodeTypeProject      NodeType = "project"
	NodeTypeDocument     NodeType = "document"
	NodeTypeCodeArtifact NodeType = "code_artifact"
)

// AllNodeTypes lists every traversable node type.
var AllNodeTypes = []NodeType{
	NodeTypeMemory,
	NodeTypeEntity,
	NodeTypeProject,
	NodeTypeDocument,
	NodeTypeCodeArtifact,
}

// IsValidNodeType reports whether t names a known node type.
func IsValidNodeType(t NodeType) bool {
	for _, v := range AllNodeTypes {
		if v == t {
			return true
		}
	}
	return false
}

// NodeRef identifies a single graph node by type and numeric ID.
type NodeRef struct {
	Type NodeType `json:"type"`
	ID   int64    `json:"id"`
}

// String renders the prefixed node ID, e.g. "memory_42".
func (r NodeRef) String() string {
	return fmt.Sprintf("%s_%d", r.Type, r.ID)
}

// ParseNodeRef parses a prefixed node ID of the form <type>_<numericID>.
// code_artifact IDs contain an underscore in the prefix, so the numeric part
// is everything after the last underscore.
func ParseNodeRef(s string) (NodeRef, error) {
	idx := strings.LastIndex(s, "_")
	if idx <= 0 || idx == len(s)-1 {
		return NodeRef{}, fmt.Errorf("malformed node id %q, want <type>_<id>", s)
	}
	t := NodeType(s[:idx])
	if !IsValidNodeType(t) {
		return NodeRef{}, fmt.Errorf("unknown node type %q in node id %q", s[:idx], s)
	}
	id, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil {
		return NodeRef{}, fmt.Errorf("non-numeric node id in %q", s)
	}
	return NodeRef{Type: t, ID: id}, nil
}

// EdgeType identifies the relation a subgraph edge represents.
type EdgeType string

const (
	EdgeTypeMemoryLink         EdgeType = "memory_link"
	EdgeTypeMemoryProject      EdgeType = "memory_project"
	EdgeTypeMemoryDocument     EdgeType = "memory_document"
	EdgeTypeMemoryCodeArtifact EdgeType = "memory_code_artifact"
	EdgeTypeMemoryEntity       EdgeType = "memory_entity"
	EdgeTypeEntityRelationship EdgeType = "entity_relationship"
	EdgeTypeDocumentProject    EdgeType = "document_project"
	EdgeTypeArtifactProject    EdgeType = "code_artifact_project"
)

// SubgraphNode is a hydrated node in a traversal result. Data holds the
// full entity row for the node's type.
type SubgraphNode struct {
	ID    string      `json:"id"`
	Type  NodeType    `json:"type"`
	Depth int         `json:"depth"`
	Label string      `json:"label"`
	Data  interface{} `json:"data"`
}

// SubgraphEdge is a typed edge whose endpoints both lie in the node set.
type SubgraphEdge struct {
	ID       string   `json:"id"`
	Type     EdgeType `json:"type"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Label    string   `json:"label,omitempty"`
}

// UndirectedEdgeID canonicalizes an edge ID for symmetric edge types so the
// same stored row never yields two edges: <typeA>_<minID>_<typeB>_<maxID>.
func UndirectedEdgeID(t NodeType, a, b int64) string {
	lo, hi := CanonicalLinkPair(a, b)
	return fmt.Sprintf("%s_%d_%s_%d", t, lo, t, hi)
}

// SubgraphMeta carries per-type counts and the echo of input parameters.
type SubgraphMeta struct {
	CenterNodeID string           `json:"center_node_id"`
	Depth        int              `json:"depth"`
	MaxNodes     int              `json:"max_nodes"`
	NodeTypes    []NodeType       `json:"node_types"`
	NodeCounts   map[NodeType]int `json:"node_counts"`
	EdgeCounts   map[EdgeType]int `json:"edge_counts"`
	Truncated    bool             `json:"truncated"`
}

// Subgraph is a bounded breadth-first extraction centered on one node.
type Subgraph struct {
	Nodes []SubgraphNode `json:"nodes"`
	Edges []SubgraphEdge `json:"edges"`
	Meta  SubgraphMeta   `json:"meta"`
}
