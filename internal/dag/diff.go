package dag

import (
	"context"
	"fmt"
	"path"

	gocid "github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"
)

// ChangeType is the kind of a Change.
type ChangeType int

const (
	// Add is set when a link is present only in the second node.
	Add ChangeType = iota
	// Remove is set when a link is present only in the first node.
	Remove
	// Mod is set when a link's target differs between the nodes.
	Mod
)

// Change is one difference between two DAGs.
type Change struct {
	Type   ChangeType
	Path   string
	Before gocid.Cid
	After  gocid.Cid
}

func (c Change) String() string {
	switch c.Type {
	case Add:
		return fmt.Sprintf("Added %s at %s", c.After, c.Path)
	case Remove:
		return fmt.Sprintf("Removed %s from %s", c.Before, c.Path)
	case Mod:
		return fmt.Sprintf("Changed %s to %s at %s", c.Before, c.After, c.Path)
	default:
		return fmt.Sprintf("unknown change %d at %s", c.Type, c.Path)
	}
}

// Getter fetches nodes by CID.
type Getter interface {
	Get(ctx context.Context, c gocid.Cid) (*Node, error)
}

// GetterFunc adapts a function to the Getter interface.
type GetterFunc func(ctx context.Context, c gocid.Cid) (*Node, error)

func (f GetterFunc) Get(ctx context.Context, c gocid.Cid) (*Node, error) {
	return f(ctx, c)
}

// Diff returns the changes that turn a into b. Links are matched by name;
// same-named links with different targets are descended into, fetching both
// children through g. When both nodes have no links they are compared by
// CID alone.
func Diff(ctx context.Context, g Getter, a, b *Node) ([]Change, error) {
	if len(a.links) == 0 && len(b.links) == 0 {
		if a.Cid().Equals(b.Cid()) {
			return nil, nil
		}
		return []Change{{Type: Mod, Before: a.Cid(), After: b.Cid()}}, nil
	}

	type pair struct{ a, b Link }
	var (
		changed []pair
		removed []Link
	)
	rest := copyLinks(b.links)
	for _, la := range a.links {
		j := -1
		for i, lb := range rest {
			if lb.Name == la.Name {
				j = i
				break
			}
		}
		if j < 0 {
			removed = append(removed, la)
			continue
		}
		lb := rest[j]
		rest = append(rest[:j], rest[j+1:]...)
		if !la.Cid.Equals(lb.Cid) {
			changed = append(changed, pair{la, lb})
		}
	}

	var out []Change
	for _, p := range changed {
		var ca, cb *Node
		eg, egctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			n, err := g.Get(egctx, p.a.Cid)
			ca = n
			return err
		})
		eg.Go(func() error {
			n, err := g.Get(egctx, p.b.Cid)
			cb = n
			return err
		})
		if err := eg.Wait(); err != nil {
			return nil, fmt.Errorf("diff %s: %w", p.a.Name, err)
		}

		sub, err := Diff(ctx, g, ca, cb)
		if err != nil {
			return nil, err
		}
		for _, c := range sub {
			c.Path = path.Join(p.a.Name, c.Path)
			out = append(out, c)
		}
	}
	for _, l := range removed {
		out = append(out, Change{Type: Remove, Path: l.Name, Before: l.Cid})
	}
	for _, l := range rest {
		out = append(out, Change{Type: Add, Path: l.Name, After: l.Cid})
	}
	return out, nil
}
