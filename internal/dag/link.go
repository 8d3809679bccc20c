package dag

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
)

// Link is a named, sized reference from one node to another.
type Link struct {
	// Name is the link name. An empty name means the link is unnamed.
	Name string
	// Cid identifies the target node. It is never undefined.
	Cid gocid.Cid
	// Size is the cumulative size of the subtree rooted at the target.
	Size uint64
}

// NewLink returns a Link to c.
func NewLink(name string, c gocid.Cid, size uint64) Link {
	return Link{Name: name, Cid: c, Size: size}
}

// LinkTo returns a Link to n, sized by n's cumulative size.
func LinkTo(name string, n *Node) Link {
	return Link{Name: name, Cid: n.Cid(), Size: n.CumulativeSize()}
}

// Equals reports whether l and o have the same name, target and size.
func (l Link) Equals(o Link) bool {
	return l.Name == o.Name && l.Size == o.Size && l.Cid.Equals(o.Cid)
}

func (l Link) String() string {
	return fmt.Sprintf("%s %s %d", l.Cid, l.Name, l.Size)
}

func copyLinks(links []Link) []Link {
	if len(links) == 0 {
		return nil
	}
	out := make([]Link, len(links))
	copy(out, links)
	return out
}
