// Package object reads and writes Merkle DAG nodes through the object API of
// a Kubo daemon.
package object

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	gocid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/systemshift/memex-object/internal/dag"
)

var log = logging.Logger("object")

// Commander is the RPC transport the store talks through. It is satisfied
// by *kubo.Client.
type Commander interface {
	DoCommand(ctx context.Context, command, arg string, opts ...string) ([]byte, error)
	Upload(ctx context.Context, command string, data []byte, opts ...string) ([]byte, error)
	PostDownload(ctx context.Context, command, arg string, opts ...string) (io.ReadCloser, error)
}

// BlockCache holds raw blocks that have already been verified against their
// CID. It is satisfied by *blockcache.Cache.
type BlockCache interface {
	Get(c gocid.Cid) ([]byte, error)
	Put(c gocid.Cid, data []byte) error
	Remove(c gocid.Cid) error
}

// Store performs object operations against a remote content-addressed store.
// It keeps no state between calls beyond its optional block cache, and is
// safe for concurrent use.
type Store struct {
	rpc       Commander
	cache     BlockCache
	dataEnc   dag.DataEncoding
	verifyPut bool
}

// Option configures a Store.
type Option func(*Store)

// WithBlockCache serves Block from c and fills it on Put and Block.
func WithBlockCache(c BlockCache) Option {
	return func(s *Store) {
		s.cache = c
	}
}

// WithDataEncoding selects how node data is carried in object/get responses.
func WithDataEncoding(e dag.DataEncoding) Option {
	return func(s *Store) {
		s.dataEnc = e
	}
}

// WithVerifyPut makes PutNode compare the daemon's acknowledged CID with the
// locally computed one.
func WithVerifyPut(verify bool) Option {
	return func(s *Store) {
		s.verifyPut = verify
	}
}

// NewStore returns a Store that issues commands through rpc.
func NewStore(rpc Commander, opts ...Option) *Store {
	s := &Store{rpc: rpc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create obtains a node from src: a Template is created by the daemon, a
// Content node is built locally and stored.
func (s *Store) Create(ctx context.Context, src Source) (*dag.Node, error) {
	switch src := src.(type) {
	case Template:
		return s.New(ctx, src.Name)
	case Content:
		return s.Put(ctx, src.Data, src.Links)
	default:
		return nil, fmt.Errorf("object: unknown source %T", src)
	}
}

// New creates a node from a daemon template and fetches it. An empty
// template is the daemon's default empty node.
func (s *Store) New(ctx context.Context, template string) (*dag.Node, error) {
	body, err := s.rpc.DoCommand(ctx, "object/new", template)
	if err != nil {
		return nil, err
	}
	c, err := decodeHash("object/new", body)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, c)
}

// NewDirectory creates an empty UnixFS directory node.
func (s *Store) NewDirectory(ctx context.Context) (*dag.Node, error) {
	return s.New(ctx, TemplateUnixFSDir)
}

// Get fetches a node. The returned node carries c as its CID; its data is
// only byte-exact when the store uses base64 data encoding.
func (s *Store) Get(ctx context.Context, c gocid.Cid) (*dag.Node, error) {
	var opts []string
	if s.dataEnc == dag.DataEncodingBase64 {
		opts = append(opts, "data-encoding=base64")
	}
	body, err := s.rpc.DoCommand(ctx, "object/get", c.String(), opts...)
	if err != nil {
		return nil, err
	}
	n, err := dag.DecodeJSON(body, s.dataEnc, c)
	if err != nil {
		return nil, protocolErr("object/get", err)
	}
	return n, nil
}

// Put builds a node from data and links and stores it.
func (s *Store) Put(ctx context.Context, data []byte, links []dag.Link) (*dag.Node, error) {
	n, err := dag.NewNode(data, links)
	if err != nil {
		return nil, err
	}
	return s.PutNode(ctx, n)
}

// PutNode uploads the canonical encoding of n and returns n itself. The
// client's encoding defines what was stored; the hash in the daemon's reply
// is only checked when the store was built WithVerifyPut.
func (s *Store) PutNode(ctx context.Context, n *dag.Node) (*dag.Node, error) {
	raw := n.Encode()
	body, err := s.rpc.Upload(ctx, "object/put", raw, "inputenc=protobuf")
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, protocolErr("object/put", errors.New("reply is not json"))
	}
	if s.verifyPut {
		got, err := decodeHash("object/put", body)
		if err != nil {
			return nil, err
		}
		if !got.Equals(n.Cid()) {
			return nil, fmt.Errorf("%w: object/put: daemon stored %s, client computed %s", ErrCidMismatch, got, n.Cid())
		}
	}

	s.cacheBlock(n.Cid(), raw)
	return n, nil
}

// Data opens a stream of the node's data. The caller must close it.
func (s *Store) Data(ctx context.Context, c gocid.Cid) (io.ReadCloser, error) {
	return s.rpc.PostDownload(ctx, "object/data", c.String())
}

// ReadData streams the node's data to fn and closes the stream on return,
// whether or not fn read it all.
func (s *Store) ReadData(ctx context.Context, c gocid.Cid, fn func(io.Reader) error) error {
	rc, err := s.Data(ctx, c)
	if err != nil {
		return err
	}
	defer rc.Close()
	return fn(rc)
}

// Links fetches the node's links in order.
func (s *Store) Links(ctx context.Context, c gocid.Cid) ([]dag.Link, error) {
	body, err := s.rpc.DoCommand(ctx, "object/links", c.String())
	if err != nil {
		return nil, err
	}
	links, err := dag.DecodeJSONLinks(body)
	if err != nil {
		return nil, protocolErr("object/links", err)
	}
	return links, nil
}

// Stat fetches the daemon's size summary of the node.
func (s *Store) Stat(ctx context.Context, c gocid.Cid) (*Stat, error) {
	body, err := s.rpc.DoCommand(ctx, "object/stat", c.String())
	if err != nil {
		return nil, err
	}
	st, err := decodeStat(body)
	if err != nil {
		return nil, protocolErr("object/stat", err)
	}
	return st, nil
}

// Block fetches the node's raw block and decodes it. Unlike Get this path
// is byte-exact: the block is checked against c before decoding.
func (s *Store) Block(ctx context.Context, c gocid.Cid) (*dag.Node, error) {
	if c.Type() != gocid.DagProtobuf {
		return nil, fmt.Errorf("object: %s is not a dag-pb node", c)
	}
	if s.cache != nil {
		if n, ok := s.cachedBlock(c); ok {
			return n, nil
		}
	}

	raw, err := s.fetchBlock(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := dag.VerifyBlock(c, raw); err != nil {
		return nil, fmt.Errorf("%w: block/get: %w", ErrCidMismatch, err)
	}
	n, err := dag.Decode(raw)
	if err != nil {
		return nil, protocolErr("block/get", err)
	}
	s.cacheBlock(c, raw)
	return n, nil
}

// cachedBlock returns the cached node for c. Cached bytes that no longer
// hash to c or do not decode are evicted and reported as a miss.
func (s *Store) cachedBlock(c gocid.Cid) (*dag.Node, bool) {
	raw, err := s.cache.Get(c)
	if err != nil {
		log.Debugw("block cache", "cid", c, "err", err)
		return nil, false
	}
	if err = dag.VerifyBlock(c, raw); err == nil {
		var n *dag.Node
		if n, err = dag.Decode(raw); err == nil {
			return n, true
		}
	}
	log.Warnw("evicting bad cached block", "cid", c, "err", err)
	if err := s.cache.Remove(c); err != nil {
		log.Warnw("block cache remove failed", "cid", c, "err", err)
	}
	return nil, false
}

func (s *Store) fetchBlock(ctx context.Context, c gocid.Cid) ([]byte, error) {
	rc, err := s.rpc.PostDownload(ctx, "block/get", c.String())
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("block/get %s: %w", c, err)
	}
	return raw, nil
}

// cacheBlock is best effort: the RPC already succeeded, so a cache failure
// is logged rather than reported.
func (s *Store) cacheBlock(c gocid.Cid, raw []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(c, raw); err != nil {
		log.Warnw("block cache write failed", "cid", c, "err", err)
	}
}

func decodeHash(command string, body []byte) (gocid.Cid, error) {
	var r struct {
		Hash string `json:"Hash"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return gocid.Undef, protocolErr(command, err)
	}
	if r.Hash == "" {
		return gocid.Undef, protocolErr(command, fmt.Errorf("Hash: %w", dag.ErrMissingField))
	}
	c, err := dag.ParseCID(r.Hash)
	if err != nil {
		return gocid.Undef, protocolErr(command, err)
	}
	return c, nil
}
