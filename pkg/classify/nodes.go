package classify

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeType tags the variants of PatternNode
type NodeType string

const (
	NodeTypeRegex   NodeType = "regex"
	NodeTypeKeyword NodeType = "keyword"
	NodeTypeAny     NodeType = "any"
)

// PatternNode is one node of a rule-pack pattern tree. The variants are
// RegexNode, KeywordNode and AnyNode; UnknownNode stands in for any tag this
// engine does not support and never matches.
type PatternNode interface {
	NodeType() NodeType
}

// RegexNode matches when its pattern occurs at least MinMatches times
type RegexNode struct {
	Pattern    PatternDescriptor
	MinMatches int
}

// KeywordNode tallies the hits of every entry
type KeywordNode struct {
	Entries    []PatternDescriptor
	MinMatches int
}

// AnyNode is a counted-OR over its children. Its summed child count must
// reach MinMatches and, when MaxMatches is set, not exceed it.
type AnyNode struct {
	Children   []PatternNode
	MinMatches int
	MaxMatches *int
}

// UnknownNode carries an unsupported type tag
type UnknownNode struct {
	Type string
}

func (RegexNode) NodeType() NodeType     { return NodeTypeRegex }
func (KeywordNode) NodeType() NodeType   { return NodeTypeKeyword }
func (AnyNode) NodeType() NodeType       { return NodeTypeAny }
func (n UnknownNode) NodeType() NodeType { return NodeType(n.Type) }

// PatternTree is an ordered list of nodes evaluated as a logical AND
type PatternTree struct {
	Nodes []PatternNode
}

// Bound returns a pointer to n, for AnyNode.MaxMatches literals
func Bound(n int) *int {
	return &n
}

// minMatches applies the default of 1 to unset thresholds
func minMatches(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// nodeWire is the serialized form shared by the JSON and YAML codecs
type nodeWire struct {
	Type       string              `json:"type" yaml:"type"`
	Pattern    *PatternDescriptor  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Entries    []PatternDescriptor `json:"entries,omitempty" yaml:"entries,omitempty"`
	Children   []nodeWire          `json:"children,omitempty" yaml:"children,omitempty"`
	MinMatches int                 `json:"min_matches,omitempty" yaml:"min_matches,omitempty"`
	MaxMatches *int                `json:"max_matches,omitempty" yaml:"max_matches,omitempty"`
}

type treeWire struct {
	Nodes []nodeWire `json:"nodes" yaml:"nodes"`
}

func (w nodeWire) node() PatternNode {
	switch NodeType(strings.ToLower(strings.TrimSpace(w.Type))) {
	case NodeTypeRegex:
		n := RegexNode{MinMatches: w.MinMatches}
		if w.Pattern != nil {
			n.Pattern = *w.Pattern
		}
		return n
	case NodeTypeKeyword:
		return KeywordNode{Entries: w.Entries, MinMatches: w.MinMatches}
	case NodeTypeAny:
		return AnyNode{Children: nodesFromWire(w.Children), MinMatches: w.MinMatches, MaxMatches: w.MaxMatches}
	default:
		return UnknownNode{Type: w.Type}
	}
}

func nodesFromWire(ws []nodeWire) []PatternNode {
	if len(ws) == 0 {
		return nil
	}
	nodes := make([]PatternNode, len(ws))
	for i, w := range ws {
		nodes[i] = w.node()
	}
	return nodes
}

func wireFromNode(node PatternNode) nodeWire {
	switch n := node.(type) {
	case RegexNode:
		p := n.Pattern
		return nodeWire{Type: string(NodeTypeRegex), Pattern: &p, MinMatches: n.MinMatches}
	case *RegexNode:
		return wireFromNode(*n)
	case KeywordNode:
		return nodeWire{Type: string(NodeTypeKeyword), Entries: n.Entries, MinMatches: n.MinMatches}
	case *KeywordNode:
		return wireFromNode(*n)
	case AnyNode:
		return nodeWire{Type: string(NodeTypeAny), Children: wireFromNodes(n.Children), MinMatches: n.MinMatches, MaxMatches: n.MaxMatches}
	case *AnyNode:
		return wireFromNode(*n)
	case nil:
		return nodeWire{}
	default:
		return nodeWire{Type: string(node.NodeType())}
	}
}

func wireFromNodes(nodes []PatternNode) []nodeWire {
	if len(nodes) == 0 {
		return nil
	}
	ws := make([]nodeWire, len(nodes))
	for i, n := range nodes {
		ws[i] = wireFromNode(n)
	}
	return ws
}

// MarshalJSON encodes the tree as {"nodes": [...]} with a "type" tag per node
func (t PatternTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(treeWire{Nodes: wireFromNodes(t.Nodes)})
}

// UnmarshalJSON accepts {"nodes": [...]} or a bare node array
func (t *PatternTree) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var ws []nodeWire
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &ws); err != nil {
			return err
		}
	} else {
		var tw treeWire
		if err := json.Unmarshal(data, &tw); err != nil {
			return err
		}
		ws = tw.Nodes
	}
	t.Nodes = nodesFromWire(ws)
	return nil
}

// MarshalYAML encodes the tree as a mapping with a nodes sequence
func (t PatternTree) MarshalYAML() (interface{}, error) {
	return treeWire{Nodes: wireFromNodes(t.Nodes)}, nil
}

// UnmarshalYAML accepts a mapping with a nodes sequence or a bare sequence
func (t *PatternTree) UnmarshalYAML(value *yaml.Node) error {
	var ws []nodeWire
	if value.Kind == yaml.SequenceNode {
		if err := value.Decode(&ws); err != nil {
			return err
		}
	} else {
		var tw treeWire
		if err := value.Decode(&tw); err != nil {
			return err
		}
		ws = tw.Nodes
	}
	t.Nodes = nodesFromWire(ws)
	return nil
}

// descriptorWire accepts "pattern" as an alias of "source" since keyword
// entries are usually written as {pattern, flags}.
type descriptorWire struct {
	Source  string `json:"source,omitempty" yaml:"source,omitempty"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Flags   string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Unicode *bool  `json:"unicode,omitempty" yaml:"unicode,omitempty"`
}

func (w descriptorWire) descriptor() PatternDescriptor {
	src := w.Source
	if src == "" {
		src = w.Pattern
	}
	return PatternDescriptor{Source: src, Flags: w.Flags, Unicode: w.Unicode}
}

// MarshalJSON encodes a compiled Regexp by its source text
func (p PatternDescriptor) MarshalJSON() ([]byte, error) {
	w := descriptorWire{Source: p.Source, Flags: p.Flags, Unicode: p.Unicode}
	if p.Regexp != nil {
		w.Source = p.Regexp.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts a plain string or an object
func (p *PatternDescriptor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PatternDescriptor{Source: s}
		return nil
	}
	var w descriptorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = w.descriptor()
	return nil
}

// UnmarshalYAML accepts a scalar or a mapping
func (p *PatternDescriptor) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*p = PatternDescriptor{Source: value.Value}
		return nil
	}
	var w descriptorWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	*p = w.descriptor()
	return nil
}
