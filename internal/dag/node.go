package dag

import (
	"fmt"
	"sync"

	gocid "github.com/ipfs/go-cid"
)

// Node is an immutable Merkle DAG node: opaque data plus an ordered list of
// links. Its CID and encoded size are derived from the canonical dag-pb
// encoding and computed at most once.
type Node struct {
	data  []byte
	links []Link

	// known is a CID supplied by the store for nodes decoded from JSON,
	// whose bytes are not available locally.
	known gocid.Cid

	once    sync.Once
	encoded []byte
	cid     gocid.Cid
}

// NewNode builds a node from data and links. Both are copied. A nil data
// slice means the node has no data field; an empty non-nil slice is an
// empty data field.
func NewNode(data []byte, links []Link) (*Node, error) {
	for i, l := range links {
		if !l.Cid.Defined() {
			return nil, fmt.Errorf("link %d (%q): %w", i, l.Name, ErrUndefinedLink)
		}
	}
	return &Node{data: copyData(data), links: copyLinks(links)}, nil
}

// NewNodeWithCid builds a node whose CID is supplied by the caller instead of
// being computed from its encoding. It is used for nodes read back from the
// store in a form that does not preserve the original bytes.
func NewNodeWithCid(c gocid.Cid, data []byte, links []Link) (*Node, error) {
	n, err := NewNode(data, links)
	if err != nil {
		return nil, err
	}
	n.known = c
	return n, nil
}

// Data returns a copy of the node's data, or nil if it has none.
func (n *Node) Data() []byte {
	return copyData(n.data)
}

// HasData reports whether the node carries a data field.
func (n *Node) HasData() bool {
	return n.data != nil
}

// Links returns a copy of the node's links in order.
func (n *Node) Links() []Link {
	return copyLinks(n.links)
}

// NumLinks returns the number of links.
func (n *Node) NumLinks() int {
	return len(n.links)
}

// Link returns the first link with the given name.
func (n *Node) Link(name string) (Link, bool) {
	for _, l := range n.links {
		if l.Name == name {
			return l, true
		}
	}
	return Link{}, false
}

// Cid returns the node's content identifier.
func (n *Node) Cid() gocid.Cid {
	if n.known.Defined() {
		return n.known
	}
	n.derive()
	return n.cid
}

// Size returns the length of the node's canonical encoding.
func (n *Node) Size() uint64 {
	n.derive()
	return uint64(len(n.encoded))
}

// CumulativeSize returns the encoded size of the node plus the sizes of
// every linked subtree.
func (n *Node) CumulativeSize() uint64 {
	s := n.Size()
	for _, l := range n.links {
		s += l.Size
	}
	return s
}

// Encode returns the canonical dag-pb encoding of the node.
func (n *Node) Encode() []byte {
	n.derive()
	out := make([]byte, len(n.encoded))
	copy(out, n.encoded)
	return out
}

func (n *Node) derive() {
	n.once.Do(func() {
		if n.encoded == nil {
			n.encoded = encodeNode(n.data, n.links)
		}
		c, err := ComputeCID(n.encoded)
		if err != nil {
			// sha2-256 is always registered with go-multihash.
			panic(err)
		}
		n.cid = c
	})
}

// WithData returns a copy of n with its data replaced.
func (n *Node) WithData(data []byte) *Node {
	return &Node{data: copyData(data), links: copyLinks(n.links)}
}

// AppendData returns a copy of n with data appended to its existing data.
func (n *Node) AppendData(data []byte) *Node {
	joined := make([]byte, 0, len(n.data)+len(data))
	joined = append(joined, n.data...)
	joined = append(joined, data...)
	return &Node{data: joined, links: copyLinks(n.links)}
}

// AddLink returns a copy of n with l appended. Existing links with the same
// name are dropped first.
func (n *Node) AddLink(l Link) (*Node, error) {
	if !l.Cid.Defined() {
		return nil, fmt.Errorf("add link %q: %w", l.Name, ErrUndefinedLink)
	}
	links := make([]Link, 0, len(n.links)+1)
	for _, existing := range n.links {
		if existing.Name != l.Name {
			links = append(links, existing)
		}
	}
	links = append(links, l)
	return &Node{data: copyData(n.data), links: links}, nil
}

// RemoveLink returns a copy of n without any link named name.
func (n *Node) RemoveLink(name string) (*Node, error) {
	links := make([]Link, 0, len(n.links))
	for _, l := range n.links {
		if l.Name != name {
			links = append(links, l)
		}
	}
	if len(links) == len(n.links) {
		return nil, fmt.Errorf("remove link %q: %w", name, ErrLinkNotFound)
	}
	return &Node{data: copyData(n.data), links: links}, nil
}

func (n *Node) String() string {
	return fmt.Sprintf("%s (%d links, %d data bytes)", n.Cid(), len(n.links), len(n.data))
}

func copyData(data []byte) []byte {
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
