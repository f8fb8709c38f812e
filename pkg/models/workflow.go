package models

import (
	"github.com/puppyone-ai/puppyone-sub007/pkg/structpath"
)

// Block is a schemaless workflow node. It carries at least an "id" and a
// "data" sub-tree; everything else is owned by the workflow editor.
type Block map[string]any

// ID returns the block id, or "" when it is missing or not a string.
func (b Block) ID() string {
	id, _ := b["id"].(string)
	return id
}

// Data returns the block's data sub-tree, creating it when absent.
func (b Block) Data() map[string]any {
	data, ok := b["data"].(map[string]any)
	if !ok {
		data = map[string]any{}
		b["data"] = data
	}
	return data
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	if b == nil {
		return nil
	}
	return Block(structpath.Clone(map[string]any(b)).(map[string]any))
}

// Edge connects two blocks. Edges are passed through untouched.
type Edge map[string]any

// WorkflowDefinition is the graph a template ships with and the graph a user
// ends up owning after instantiation.
type WorkflowDefinition struct {
	Blocks   []Block `json:"blocks"`
	Edges    []Edge  `json:"edges"`
	Viewport any     `json:"viewport,omitempty"`
	Version  any     `json:"version,omitempty"`
}

// Clone returns a deep copy so the original template graph can be shared
// across instantiations.
func (w *WorkflowDefinition) Clone() *WorkflowDefinition {
	if w == nil {
		return nil
	}
	out := &WorkflowDefinition{
		Blocks:   make([]Block, len(w.Blocks)),
		Edges:    make([]Edge, len(w.Edges)),
		Viewport: structpath.Clone(w.Viewport),
		Version:  structpath.Clone(w.Version),
	}
	for i, b := range w.Blocks {
		out.Blocks[i] = b.Clone()
	}
	for i, e := range w.Edges {
		if e != nil {
			out.Edges[i] = Edge(structpath.Clone(map[string]any(e)).(map[string]any))
		}
	}
	return out
}

// FindBlock returns the block with the given id.
func (w *WorkflowDefinition) FindBlock(id string) (Block, bool) {
	for _, b := range w.Blocks {
		if b.ID() == id {
			return b, true
		}
	}
	return nil, false
}
