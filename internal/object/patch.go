package object

import (
	"context"
	"fmt"
	"io"

	gocid "github.com/ipfs/go-cid"
	"github.com/systemshift/memex-object/internal/dag"
	"golang.org/x/sync/errgroup"
)

// The patch operations read the base node as a raw block so the stored
// result differs from the base only by the requested change. Each returns
// the new node; the base is never modified.

// AddLink stores a copy of base with a link named name pointing at child.
// The link size is the child's cumulative size as reported by the daemon.
// An existing link with the same name is replaced.
func (s *Store) AddLink(ctx context.Context, base gocid.Cid, name string, child gocid.Cid) (*dag.Node, error) {
	var (
		n  *dag.Node
		st *Stat
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		n, err = s.Block(gctx, base)
		return err
	})
	g.Go(func() error {
		var err error
		st, err = s.Stat(gctx, child)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if st.CumulativeSize < 0 {
		return nil, protocolErr("object/stat", fmt.Errorf("negative cumulative size %d", st.CumulativeSize))
	}

	next, err := n.AddLink(dag.NewLink(name, child, uint64(st.CumulativeSize)))
	if err != nil {
		return nil, err
	}
	log.Debugw("add link", "base", base, "name", name, "child", child)
	return s.PutNode(ctx, next)
}

// RmLink stores a copy of base without the links named name.
func (s *Store) RmLink(ctx context.Context, base gocid.Cid, name string) (*dag.Node, error) {
	n, err := s.Block(ctx, base)
	if err != nil {
		return nil, err
	}
	next, err := n.RemoveLink(name)
	if err != nil {
		return nil, fmt.Errorf("rm-link %q from %s: %w", name, base, err)
	}
	log.Debugw("remove link", "base", base, "name", name)
	return s.PutNode(ctx, next)
}

// SetData stores a copy of base whose data is read from r.
func (s *Store) SetData(ctx context.Context, base gocid.Cid, r io.Reader) (*dag.Node, error) {
	return s.patchData(ctx, base, r, (*dag.Node).WithData)
}

// AppendData stores a copy of base with the bytes from r appended to its
// data.
func (s *Store) AppendData(ctx context.Context, base gocid.Cid, r io.Reader) (*dag.Node, error) {
	return s.patchData(ctx, base, r, (*dag.Node).AppendData)
}

func (s *Store) patchData(ctx context.Context, base gocid.Cid, r io.Reader, apply func(*dag.Node, []byte) *dag.Node) (*dag.Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read patch data: %w", err)
	}
	n, err := s.Block(ctx, base)
	if err != nil {
		return nil, err
	}
	return s.PutNode(ctx, apply(n, data))
}

// Diff lists the changes that turn the DAG rooted at a into the one rooted
// at b. Nodes are fetched as verified blocks.
func (s *Store) Diff(ctx context.Context, a, b gocid.Cid) ([]dag.Change, error) {
	var na, nb *dag.Node
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		na, err = s.Block(gctx, a)
		return err
	})
	g.Go(func() error {
		var err error
		nb, err = s.Block(gctx, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dag.Diff(ctx, dag.GetterFunc(s.Block), na, nb)
}
