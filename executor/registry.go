package executor

import "github.com/workflowrunner/workflowrunner/node"

// Node kind names, matching workflow.NodeDef.Type exactly (spec §4.5).
const (
	TypeConversationMemory = "ConversationMemory"
	TypeIntentClassifier   = "IntentClassifier"
	TypeRouter             = "Router"
	TypeSlotTracker        = "SlotTracker"
	TypeVectorSearch       = "VectorSearch"
	TypeVectorWrite        = "VectorWrite"
	TypeModelInvoke        = "ModelInvoke"
	TypeFormat             = "Format"
	TypeStreamToClient     = "StreamToClient"
)

// NodeRegistry maps a workflow node's declared type to the
// implementation that runs it.
type NodeRegistry map[string]node.Node

// DefaultNodeRegistry wires every node kind the Node Library implements
// (spec §4.5's eight kinds, plus StreamToClient which §4.5 also
// describes as the ninth, terminal kind).
func DefaultNodeRegistry() NodeRegistry {
	return NodeRegistry{
		TypeConversationMemory: node.ConversationMemory{},
		TypeIntentClassifier:   node.IntentClassifier{},
		TypeRouter:             node.Router{},
		TypeSlotTracker:        node.SlotTracker{},
		TypeVectorSearch:       node.VectorSearch{},
		TypeVectorWrite:        node.VectorWrite{},
		TypeModelInvoke:        node.ModelInvoke{},
		TypeFormat:             node.Format{},
		TypeStreamToClient:     node.StreamToClient{},
	}
}
