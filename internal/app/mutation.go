package app

import "strings"

// NodeType distinguishes element nodes from everything else in a mutation
type NodeType int

const (
	ElementNode NodeType = 1
	TextNode    NodeType = 3
)

// Node is one node added to the document
type Node struct {
	Type NodeType `json:"type"`
	Tag  string   `json:"tag,omitempty"`
}

// Mutation is one structural change reported by the host
type Mutation struct {
	AddedNodes []Node `json:"addedNodes"`
}

// MutationWatcher decides which structural changes warrant a re-scan
type MutationWatcher struct {
	tags map[string]struct{}
}

// NewMutationWatcher watches for added video, audio and iframe elements
func NewMutationWatcher() MutationWatcher {
	return MutationWatcher{tags: map[string]struct{}{
		"video":  {},
		"audio":  {},
		"iframe": {},
	}}
}

// Qualifies reports whether any mutation in batch added a media element
func (w MutationWatcher) Qualifies(batch []Mutation) bool {
	for _, m := range batch {
		for _, n := range m.AddedNodes {
			if n.Type != ElementNode {
				continue
			}
			if _, ok := w.tags[strings.ToLower(n.Tag)]; ok {
				return true
			}
		}
	}
	return false
}
