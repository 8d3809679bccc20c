package dag

import (
	"fmt"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ComputeCID computes the CIDv0 (dag-pb, SHA2-256) for an encoded node.
func ComputeCID(encoded []byte) (gocid.Cid, error) {
	mh, err := multihash.Sum(encoded, multihash.SHA2_256, -1)
	if err != nil {
		return gocid.Undef, fmt.Errorf("multihash: %w", err)
	}
	return gocid.NewCidV0(mh), nil
}

// ParseCID parses a CID string, accepting an optional /ipfs/ prefix.
func ParseCID(s string) (gocid.Cid, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "/ipfs/")
	if s == "" {
		return gocid.Undef, fmt.Errorf("parse cid: empty string")
	}
	c, err := gocid.Decode(s)
	if err != nil {
		return gocid.Undef, fmt.Errorf("parse cid %q: %w", s, err)
	}
	return c, nil
}

// VerifyBlock reports whether data hashes to c under c's own prefix.
func VerifyBlock(c gocid.Cid, data []byte) error {
	got, err := c.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("hash block: %w", err)
	}
	if !got.Equals(c) {
		return fmt.Errorf("block hashes to %s, want %s", got, c)
	}
	return nil
}
