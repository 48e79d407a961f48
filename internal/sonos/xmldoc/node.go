package xmldoc

import "strings"

// Kind tags the shape of a Node.
type Kind int

const (
	KindScalar Kind = iota
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Node is a loosely structured document value: a scalar, an ordered list, or a
// keyed map that remembers insertion order.
type Node struct {
	Kind   Kind
	Scalar string
	List   []*Node

	keys   []string
	fields map[string]*Node
}

// NewScalar returns a scalar node.
func NewScalar(value string) *Node {
	return &Node{Kind: KindScalar, Scalar: value}
}

// NewList returns a list node holding items.
func NewList(items ...*Node) *Node {
	return &Node{Kind: KindList, List: items}
}

// NewMap returns an empty map node.
func NewMap() *Node {
	return &Node{Kind: KindMap, fields: make(map[string]*Node)}
}

// Set stores value under key. Setting an existing key replaces its value but
// keeps its original position.
func (n *Node) Set(key string, value *Node) {
	if n.Kind != KindMap {
		return
	}
	if _, exists := n.fields[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.fields[key] = value
}

// Append adds value under key, turning an existing entry into a list when the
// key repeats.
func (n *Node) Append(key string, value *Node) {
	if n.Kind != KindMap {
		return
	}
	existing, ok := n.fields[key]
	if !ok {
		n.Set(key, value)
		return
	}
	if existing.Kind == KindList {
		existing.List = append(existing.List, value)
		return
	}
	n.fields[key] = NewList(existing, value)
}

// Get returns the child stored under key.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != KindMap {
		return nil, false
	}
	child, ok := n.fields[key]
	return child, ok
}

// Keys returns map keys in insertion order.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != KindMap {
		return nil
	}
	keys := make([]string, len(n.keys))
	copy(keys, n.keys)
	return keys
}

// Text returns the trimmed scalar value stored under key, or "" when the key
// is missing or not a scalar. A map child carrying #text is also accepted.
func (n *Node) Text(key string) string {
	child, ok := n.Get(key)
	if !ok {
		return ""
	}
	switch child.Kind {
	case KindScalar:
		return strings.TrimSpace(child.Scalar)
	case KindMap:
		return child.Text(TextKey)
	default:
		return ""
	}
}

// Find walks the tree depth-first and returns the first value stored under key.
func (n *Node) Find(key string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Kind {
	case KindMap:
		if child, ok := n.fields[key]; ok {
			return child, true
		}
		for _, k := range n.keys {
			if found, ok := n.fields[k].Find(key); ok {
				return found, true
			}
		}
	case KindList:
		for _, item := range n.List {
			if found, ok := item.Find(key); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// Items returns list items, or the node itself wrapped in a slice for any
// other kind. Documents built from XML only produce a list when an element
// repeats, so callers use Items to treat one and many the same way.
func (n *Node) Items() []*Node {
	if n == nil {
		return nil
	}
	if n.Kind == KindList {
		return n.List
	}
	return []*Node{n}
}
