// Package graph implements C2: typed-node persistence. All durable agent
// state -- config, incidents, problems, insights, identity snapshots -- is
// a Node; specializations serialize to and from the generic form through a
// process-wide type registry (registry.go).
package graph

import (
	"time"

	"github.com/google/uuid"
)

// Scope partitions nodes the way the spec's data model requires: LOCAL
// state is per-deployment, IDENTITY state travels with the agent's sense
// of self (wakeup snapshots, recurring problems).
type Scope string

const (
	ScopeLocal    Scope = "local"
	ScopeIdentity Scope = "identity"
)

// reservedAttributeKeys are base Node fields that a typed node's
// ToNode implementation must never duplicate into Attributes.
var reservedAttributeKeys = map[string]bool{
	"id": true, "type": true, "scope": true, "version": true,
	"updated_by": true, "updated_at": true,
}

// Node is the generic, storage-level representation every typed variant
// serializes to. Version starts at 1 and only increases; UpdatedBy and
// UpdatedAt are always populated on write.
type Node struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Scope      Scope                  `json:"scope"`
	Attributes map[string]interface{} `json:"attributes"`
	Version    int                    `json:"version"`
	UpdatedBy  string                 `json:"updated_by"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// NewNode builds a Node with version 1 and the reserved-key invariant
// enforced: any reserved key present in attrs is dropped rather than
// silently overwriting a base field.
func NewNode(id, nodeType string, scope Scope, attrs map[string]interface{}, updatedBy string) *Node {
	if id == "" {
		id = uuid.NewString()
	}
	clean := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if !reservedAttributeKeys[k] {
			clean[k] = v
		}
	}
	return &Node{
		ID:         id,
		Type:       nodeType,
		Scope:      scope,
		Attributes: clean,
		Version:    1,
		UpdatedBy:  updatedBy,
		UpdatedAt:  time.Now().UTC(),
	}
}

// TypedNode is implemented by every node specialization (ConfigNode,
// IncidentNode, ProblemNode, ...). ToNode must tag the generic form's
// Attributes with "_node_class" so FromNode (via the registry) can
// reconstruct the right Go type.
type TypedNode interface {
	ToNode() *Node
}

// NodeClassKey is the attribute FromNode constructors read to recover the
// concrete Go type of a serialized node.
const NodeClassKey = "_node_class"
