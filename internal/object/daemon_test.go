package object

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systemshift/memex-object/internal/blockcache"
	"github.com/systemshift/memex-object/internal/dag"
	"github.com/systemshift/memex-object/internal/kubo"
)

// fakeDaemon serves the object and block commands from an in-memory block
// map, the way a Kubo node would.
type fakeDaemon struct {
	mu     sync.Mutex
	blocks map[string][]byte
	hits   map[string]int
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, *kubo.Client) {
	t.Helper()
	d := &fakeDaemon{blocks: map[string][]byte{}, hits: map[string]int{}}
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return d, kubo.NewClient(srv.URL + "/api/v0")
}

func (d *fakeDaemon) store(n *dag.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := n.Cid().String()
	d.blocks[id] = n.Encode()
	return id
}

func (d *fakeDaemon) count(command string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits[command]
}

func (d *fakeDaemon) lookup(w http.ResponseWriter, r *http.Request) (*dag.Node, []byte, bool) {
	d.mu.Lock()
	raw, ok := d.blocks[r.URL.Query().Get("arg")]
	d.mu.Unlock()
	if !ok {
		fail(w, http.StatusInternalServerError, "merkledag: not found")
		return nil, nil, false
	}
	n, err := dag.Decode(raw)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	return n, raw, true
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	command := strings.TrimPrefix(r.URL.Path, "/api/v0/")
	d.mu.Lock()
	d.hits[command]++
	d.mu.Unlock()

	switch command {
	case "object/new":
		data := []byte(nil)
		if r.URL.Query().Get("arg") == TemplateUnixFSDir {
			data = []byte{0x08, 0x01}
		}
		n, _ := dag.NewNode(data, nil)
		reply(w, map[string]string{"Hash": d.store(n)})

	case "object/put":
		if r.URL.Query().Get("inputenc") != "protobuf" {
			fail(w, http.StatusBadRequest, "unsupported inputenc")
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		defer f.Close()
		raw, _ := io.ReadAll(f)
		n, err := dag.Decode(raw)
		if err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		reply(w, map[string]any{"Hash": d.store(n), "Links": []any{}})

	case "object/get", "object/links":
		n, _, ok := d.lookup(w, r)
		if !ok {
			return
		}
		out := map[string]any{"Links": jsonLinks(n)}
		if command == "object/get" && n.HasData() {
			if r.URL.Query().Get("data-encoding") == "base64" {
				out["Data"] = n.Data()
			} else {
				out["Data"] = string(n.Data())
			}
		}
		if command == "object/links" {
			out["Hash"] = n.Cid().String()
		}
		reply(w, out)

	case "object/data":
		n, _, ok := d.lookup(w, r)
		if ok {
			w.Write(n.Data())
		}

	case "object/stat":
		n, raw, ok := d.lookup(w, r)
		if !ok {
			return
		}
		reply(w, map[string]any{
			"Hash":           n.Cid().String(),
			"NumLinks":       n.NumLinks(),
			"BlockSize":      len(raw),
			"LinksSize":      len(raw) - len(n.Data()),
			"DataSize":       len(n.Data()),
			"CumulativeSize": n.CumulativeSize(),
		})

	case "block/get":
		_, raw, ok := d.lookup(w, r)
		if ok {
			w.Write(raw)
		}

	default:
		fail(w, http.StatusNotFound, "404 page not found")
	}
}

func jsonLinks(n *dag.Node) []map[string]any {
	out := []map[string]any{}
	for _, l := range n.Links() {
		out = append(out, map[string]any{"Name": l.Name, "Hash": l.Cid.String(), "Size": l.Size})
	}
	return out
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"Message":%q,"Code":0,"Type":"error"}`, msg)
}

func TestDaemon_PutThenGet(t *testing.T) {
	_, rpc := newFakeDaemon(t)
	s := NewStore(rpc)
	ctx := context.Background()

	put, err := s.Put(ctx, []byte("hello"), nil)
	require.NoError(t, err)

	got, err := s.Get(ctx, put.Cid())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got.Data())
	assert.Zero(t, got.NumLinks())
	assert.Equal(t, put.Cid(), got.Cid())
}

func TestDaemon_BinaryDataBase64(t *testing.T) {
	_, rpc := newFakeDaemon(t)
	s := NewStore(rpc, WithDataEncoding(dag.DataEncodingBase64), WithVerifyPut(true))
	ctx := context.Background()

	data := []byte{0xff, 0xfe, 0x00, 0x80}
	put, err := s.Put(ctx, data, nil)
	require.NoError(t, err)

	got, err := s.Get(ctx, put.Cid())
	require.NoError(t, err)
	assert.Equal(t, data, got.Data())
	assert.Equal(t, put.Encode(), got.Encode())
}

func TestDaemon_NewDirectory(t *testing.T) {
	_, rpc := newFakeDaemon(t)
	s := NewStore(rpc, WithDataEncoding(dag.DataEncodingBase64))

	dir, err := s.NewDirectory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, emptyDirCID, dir.Cid().String())
	assert.Equal(t, []byte{0x08, 0x01}, dir.Data())
}

func TestDaemon_LinksAndStat(t *testing.T) {
	d, rpc := newFakeDaemon(t)
	s := NewStore(rpc)
	ctx := context.Background()

	leaf, err := dag.NewNode([]byte("leaf"), nil)
	require.NoError(t, err)
	d.store(leaf)
	root, err := s.Put(ctx, []byte("root"), []dag.Link{dag.LinkTo("leaf", leaf)})
	require.NoError(t, err)

	links, err := s.Links(ctx, root.Cid())
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.True(t, links[0].Equals(dag.LinkTo("leaf", leaf)))

	st, err := s.Stat(ctx, root.Cid())
	require.NoError(t, err)
	assert.Equal(t, 1, st.LinkCount)
	assert.Equal(t, int64(root.Size()), st.BlockSize)
	assert.Equal(t, int64(4), st.DataSize)
	assert.Equal(t, int64(root.CumulativeSize()), st.CumulativeSize)
}

func TestDaemon_Data(t *testing.T) {
	_, rpc := newFakeDaemon(t)
	s := NewStore(rpc)
	ctx := context.Background()

	n, err := s.Put(ctx, []byte("payload"), nil)
	require.NoError(t, err)

	rc, err := s.Data(ctx, n.Cid())
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
}

func TestDaemon_NotFoundIsTransportError(t *testing.T) {
	_, rpc := newFakeDaemon(t)
	s := NewStore(rpc)

	_, err := s.Get(context.Background(), mustCID(t, emptyDirCID))
	var herr *kubo.HTTPError
	require.True(t, errors.As(err, &herr), "err = %v", err)
	assert.Equal(t, "merkledag: not found", herr.Message)
	assert.NotErrorIs(t, err, ErrProtocol)
}

func TestDaemon_CancelInFlight(t *testing.T) {
	arrived := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	s := NewStore(kubo.NewClient(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-arrived
		cancel()
	}()
	n, err := s.Get(ctx, mustCID(t, emptyDirCID))
	assert.Nil(t, n)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDaemon_BlockCache(t *testing.T) {
	d, rpc := newFakeDaemon(t)
	cache, err := blockcache.New(t.TempDir())
	require.NoError(t, err)
	s := NewStore(rpc, WithBlockCache(cache))
	ctx := context.Background()

	n, err := s.Put(ctx, []byte("cached"), nil)
	require.NoError(t, err)
	assert.True(t, cache.Has(n.Cid()))

	got, err := s.Block(ctx, n.Cid())
	require.NoError(t, err)
	assert.Equal(t, n.Encode(), got.Encode())
	assert.Zero(t, d.count("block/get"))

	other, err := dag.NewNode([]byte("stored elsewhere"), nil)
	require.NoError(t, err)
	d.store(other)
	_, err = s.Block(ctx, other.Cid())
	require.NoError(t, err)
	assert.Equal(t, 1, d.count("block/get"))
	assert.True(t, cache.Has(other.Cid()))
}

func TestDaemon_Patch(t *testing.T) {
	d, rpc := newFakeDaemon(t)
	s := NewStore(rpc, WithVerifyPut(true))
	ctx := context.Background()

	base, err := s.Put(ctx, []byte("base"), nil)
	require.NoError(t, err)
	child, err := dag.NewNode([]byte("child"), nil)
	require.NoError(t, err)
	d.store(child)

	withLink, err := s.AddLink(ctx, base.Cid(), "c", child.Cid())
	require.NoError(t, err)
	l, ok := withLink.Link("c")
	require.True(t, ok)
	assert.Equal(t, child.Cid(), l.Cid)
	assert.Equal(t, child.CumulativeSize(), l.Size)
	assert.Equal(t, []byte("base"), withLink.Data())

	appended, err := s.AppendData(ctx, withLink.Cid(), strings.NewReader("-more"))
	require.NoError(t, err)
	assert.Equal(t, []byte("base-more"), appended.Data())
	assert.Equal(t, 1, appended.NumLinks())

	set, err := s.SetData(ctx, appended.Cid(), strings.NewReader("new"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), set.Data())

	removed, err := s.RmLink(ctx, set.Cid(), "c")
	require.NoError(t, err)
	assert.Zero(t, removed.NumLinks())

	_, err = s.RmLink(ctx, removed.Cid(), "c")
	assert.ErrorIs(t, err, dag.ErrLinkNotFound)
}

func TestDaemon_Diff(t *testing.T) {
	d, rpc := newFakeDaemon(t)
	s := NewStore(rpc)
	ctx := context.Background()

	leaf := func(s string) *dag.Node {
		n, err := dag.NewNode([]byte(s), nil)
		require.NoError(t, err)
		d.store(n)
		return n
	}
	x1, x2, y, z := leaf("x1"), leaf("x2"), leaf("y"), leaf("z")

	a, err := s.Put(ctx, nil, []dag.Link{dag.LinkTo("x", x1), dag.LinkTo("y", y)})
	require.NoError(t, err)
	b, err := s.Put(ctx, nil, []dag.Link{dag.LinkTo("x", x2), dag.LinkTo("z", z)})
	require.NoError(t, err)

	changes, err := s.Diff(ctx, a.Cid(), b.Cid())
	require.NoError(t, err)
	assert.Equal(t, []dag.Change{
		{Type: dag.Mod, Path: "x", Before: x1.Cid(), After: x2.Cid()},
		{Type: dag.Remove, Path: "y", Before: y.Cid()},
		{Type: dag.Add, Path: "z", After: z.Cid()},
	}, changes)
}

func TestDaemon_BlockCacheEvictsCorrupt(t *testing.T) {
	d, rpc := newFakeDaemon(t)
	dir := t.TempDir()
	cache, err := blockcache.New(dir)
	require.NoError(t, err)
	s := NewStore(rpc, WithBlockCache(cache))

	want, err := dag.NewNode([]byte("genuine"), nil)
	require.NoError(t, err)
	d.store(want)
	bogus, err := dag.NewNode([]byte("bogus"), nil)
	require.NoError(t, err)
	path := filepath.Join(dir, blockcache.Filename(want.Cid()))
	require.NoError(t, os.WriteFile(path, bogus.Encode(), 0644))

	got, err := s.Block(context.Background(), want.Cid())
	require.NoError(t, err)
	assert.Equal(t, want.Cid(), got.Cid())
	assert.Equal(t, []byte("genuine"), got.Data())
	assert.Equal(t, 1, d.count("block/get"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.Encode(), raw)
}

func TestDaemon_BlockCacheUndecodable(t *testing.T) {
	d, rpc := newFakeDaemon(t)
	dir := t.TempDir()
	cache, err := blockcache.New(dir)
	require.NoError(t, err)
	s := NewStore(rpc, WithBlockCache(cache))

	want, err := dag.NewNode([]byte("genuine"), nil)
	require.NoError(t, err)
	d.store(want)
	path := filepath.Join(dir, blockcache.Filename(want.Cid()))
	require.NoError(t, os.WriteFile(path, []byte{0xff}, 0644))

	got, err := s.Block(context.Background(), want.Cid())
	require.NoError(t, err)
	assert.Equal(t, want.Encode(), got.Encode())
	assert.Equal(t, 1, d.count("block/get"))
}
