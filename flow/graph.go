package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ExecutionGraphNode is one diagnostic node in a committed workflow's
// adjacency view (spec.md §4.2 "execution-graph adjacency view for
// diagnostics"). It mirrors the shape of a FlowEntry but flattens
// predicates/loop kind down to strings so it can be rendered or hashed
// without reaching back into user closures.
type ExecutionGraphNode struct {
	Index int
	Kind  string
	// StepIDs are the step ids this node directly executes, in the order
	// the engine would consider them (branch order for conditional,
	// declaration order for parallel/step, single-element for loop/foreach).
	StepIDs []string
	// Detail carries kind-specific shape info relevant to diagnostics:
	// the loop kind name, or the foreach concurrency, formatted as a
	// string so the whole graph is trivially hashable.
	Detail string
}

func buildExecutionGraph(entries []FlowEntry) []ExecutionGraphNode {
	nodes := make([]ExecutionGraphNode, len(entries))
	for i, e := range entries {
		node := ExecutionGraphNode{Index: i, Kind: e.Kind.String(), StepIDs: e.stepIDs()}
		switch e.Kind {
		case KindLoop:
			if e.Loop == LoopDoWhile {
				node.Detail = "do-while"
			} else {
				node.Detail = "do-until"
			}
		case KindForEach:
			node.Detail = "concurrency=" + strconv.Itoa(e.ForEachOpts.Concurrency)
		case KindConditional:
			node.Detail = "branches=" + strconv.Itoa(len(e.Children))
		}
		nodes[i] = node
	}
	return nodes
}

// hashExecutionGraph computes a stable hash of the graph's shape: kind,
// step ids, and kind-specific detail, concatenated in order. It
// deliberately excludes anything that isn't reproducible across process
// boundaries (predicate closures, execute functions).
func hashExecutionGraph(nodes []ExecutionGraphNode) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(n.Kind)
		b.WriteByte('|')
		b.WriteString(strings.Join(n.StepIDs, ","))
		b.WriteByte('|')
		b.WriteString(n.Detail)
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
