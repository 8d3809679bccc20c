package dag

import (
	"bytes"
	"fmt"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-varint"
)

// dag-pb field keys: field number << 3 | wire type.
const (
	wireVarint = 0
	wireBytes  = 2

	keyNodeData  = 1<<3 | wireBytes
	keyNodeLinks = 2<<3 | wireBytes
	keyLinkHash  = 1<<3 | wireBytes
	keyLinkName  = 2<<3 | wireBytes
	keyLinkTsize = 3<<3 | wireVarint
)

// encodeNode writes links in order, then data if present. This is the field
// order every dag-pb implementation hashes, so equal inputs give equal bytes.
func encodeNode(data []byte, links []Link) []byte {
	var buf bytes.Buffer
	for _, l := range links {
		lb := encodeLink(l)
		buf.Grow(1 + varint.UvarintSize(uint64(len(lb))) + len(lb))
		buf.Write(varint.ToUvarint(keyNodeLinks))
		buf.Write(varint.ToUvarint(uint64(len(lb))))
		buf.Write(lb)
	}
	if data != nil {
		buf.Grow(1 + varint.UvarintSize(uint64(len(data))) + len(data))
		buf.Write(varint.ToUvarint(keyNodeData))
		buf.Write(varint.ToUvarint(uint64(len(data))))
		buf.Write(data)
	}
	return buf.Bytes()
}

func encodeLink(l Link) []byte {
	hash := l.Cid.Bytes()
	name := []byte(l.Name)

	var buf bytes.Buffer
	buf.Grow(3 +
		varint.UvarintSize(uint64(len(hash))) + len(hash) +
		varint.UvarintSize(uint64(len(name))) + len(name) +
		varint.UvarintSize(l.Size))
	buf.Write(varint.ToUvarint(keyLinkHash))
	buf.Write(varint.ToUvarint(uint64(len(hash))))
	buf.Write(hash)
	buf.Write(varint.ToUvarint(keyLinkName))
	buf.Write(varint.ToUvarint(uint64(len(name))))
	buf.Write(name)
	buf.Write(varint.ToUvarint(keyLinkTsize))
	buf.Write(varint.ToUvarint(l.Size))
	return buf.Bytes()
}

// Decode parses a dag-pb encoded node. The node's CID is computed from b
// itself, so it matches the CID the bytes were stored under even when b was
// produced by an encoder that omits empty link names.
//
// Decoding is strict: any bytes that are not a sequence of links followed by
// at most one data field fail with ErrMalformedEncoding.
func Decode(b []byte) (*Node, error) {
	var (
		data    []byte
		links   []Link
		sawData bool
	)
	buf := bytes.NewBuffer(b)
	for buf.Len() != 0 {
		key, err := varint.ReadUvarint(buf)
		if err != nil {
			return nil, malformed("read field key: %v", err)
		}
		switch key {
		case keyNodeLinks:
			if sawData {
				return nil, malformed("link after data field")
			}
			rec, err := readBytes(buf)
			if err != nil {
				return nil, malformed("link %d: %v", len(links), err)
			}
			l, err := decodeLink(rec)
			if err != nil {
				return nil, fmt.Errorf("link %d: %w", len(links), err)
			}
			links = append(links, l)
		case keyNodeData:
			if sawData {
				return nil, malformed("duplicate data field")
			}
			rec, err := readBytes(buf)
			if err != nil {
				return nil, malformed("data: %v", err)
			}
			data = make([]byte, len(rec))
			copy(data, rec)
			sawData = true
		default:
			return nil, malformed("unexpected field key 0x%x", key)
		}
	}

	encoded := make([]byte, len(b))
	copy(encoded, b)
	return &Node{data: data, links: links, encoded: encoded}, nil
}

func decodeLink(b []byte) (Link, error) {
	var (
		l       Link
		sawHash bool
		last    uint64
	)
	buf := bytes.NewBuffer(b)
	for buf.Len() != 0 {
		key, err := varint.ReadUvarint(buf)
		if err != nil {
			return Link{}, malformed("read link field key: %v", err)
		}
		field := key >> 3
		if field <= last {
			return Link{}, malformed("link field %d out of order", field)
		}
		last = field

		switch key {
		case keyLinkHash:
			rec, err := readBytes(buf)
			if err != nil {
				return Link{}, malformed("link hash: %v", err)
			}
			c, err := gocid.Cast(rec)
			if err != nil {
				return Link{}, malformed("link hash: %v", err)
			}
			l.Cid = c
			sawHash = true
		case keyLinkName:
			rec, err := readBytes(buf)
			if err != nil {
				return Link{}, malformed("link name: %v", err)
			}
			l.Name = string(rec)
		case keyLinkTsize:
			size, err := varint.ReadUvarint(buf)
			if err != nil {
				return Link{}, malformed("link size: %v", err)
			}
			l.Size = size
		default:
			return Link{}, malformed("unexpected link field key 0x%x", key)
		}
	}
	if !sawHash {
		return Link{}, malformed("link has no hash")
	}
	return l, nil
}

func readBytes(buf *bytes.Buffer) ([]byte, error) {
	usize, err := varint.ReadUvarint(buf)
	if err != nil {
		return nil, err
	}
	if usize > uint64(buf.Len()) {
		return nil, fmt.Errorf("length %d exceeds %d remaining bytes", usize, buf.Len())
	}
	return buf.Next(int(usize)), nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedEncoding, fmt.Sprintf(format, args...))
}
