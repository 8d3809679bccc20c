package dag

import (
	"testing"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_RoundTrip(t *testing.T) {
	a := testCID(t, "a")
	b := testCID(t, "b")
	cases := map[string]*Node{
		"empty":      testNode(t, nil),
		"empty data": testNode(t, []byte{}),
		"data only":  testNode(t, []byte("hello")),
		"links only": testNode(t, nil, NewLink("x", a, 1), NewLink("", b, 0)),
		"both": testNode(t, []byte{0x00, 0xff, 0x10},
			NewLink("first", a, 300), NewLink("second", b, 1<<40), NewLink("first", a, 300)),
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Decode(n.Encode())
			require.NoError(t, err)
			assert.Equal(t, n.Data(), got.Data())
			assert.Equal(t, n.HasData(), got.HasData())
			assert.Equal(t, n.Links(), got.Links())
			assert.True(t, n.Cid().Equals(got.Cid()))
			assert.Equal(t, n.Size(), got.Size())
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	n := testNode(t, []byte("x"), NewLink("a", testCID(t, "a"), 7))
	first := n.Encode()
	for i := 0; i < 20; i++ {
		again := testNode(t, []byte("x"), NewLink("a", testCID(t, "a"), 7))
		require.Equal(t, first, again.Encode())
	}
}

func TestDecode_Truncated(t *testing.T) {
	l := NewLink("x", testCID(t, "a"), 12)
	n := testNode(t, []byte("hello"), l)
	enc := n.Encode()
	// Cutting exactly after the link table leaves a valid links-only node.
	boundary := len(testNode(t, nil, l).Encode())
	for i := 1; i < len(enc); i++ {
		if i == boundary {
			continue
		}
		_, err := Decode(enc[:i])
		require.ErrorIs(t, err, ErrMalformedEncoding, "prefix of %d bytes", i)
	}
}

func TestDecode_TrailingGarbage(t *testing.T) {
	enc := testNode(t, []byte("hello")).Encode()
	for _, tail := range [][]byte{{0x00}, {0xff}, {0x0a, 0x05, 'x'}, {0x12, 0x00}} {
		_, err := Decode(append(append([]byte{}, enc...), tail...))
		require.ErrorIs(t, err, ErrMalformedEncoding, "tail %x", tail)
	}
}

func TestDecode_LinkWithoutHash(t *testing.T) {
	var rec []byte
	rec = append(rec, keyLinkName)
	rec = append(rec, varint.ToUvarint(1)...)
	rec = append(rec, 'x')
	rec = append(rec, keyLinkTsize, 0x01)

	b := append([]byte{keyNodeLinks}, varint.ToUvarint(uint64(len(rec)))...)
	b = append(b, rec...)
	_, err := Decode(b)
	require.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestDecode_LinkWithoutNameOrSize(t *testing.T) {
	c := testCID(t, "a")
	hash := c.Bytes()
	rec := append([]byte{keyLinkHash}, varint.ToUvarint(uint64(len(hash)))...)
	rec = append(rec, hash...)

	b := append([]byte{keyNodeLinks}, varint.ToUvarint(uint64(len(rec)))...)
	b = append(b, rec...)
	n, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, 1, n.NumLinks())
	assert.Equal(t, NewLink("", c, 0), n.Links()[0])

	// The CID covers the bytes as received, not a re-encoding.
	want, err := ComputeCID(b)
	require.NoError(t, err)
	assert.True(t, want.Equals(n.Cid()))
	assert.Equal(t, b, n.Encode())
}

func TestDecode_LinkAfterData(t *testing.T) {
	data := testNode(t, []byte("d")).Encode()
	link := testNode(t, nil, NewLink("x", testCID(t, "a"), 1)).Encode()
	_, err := Decode(append(data, link...))
	require.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestDecode_DuplicateData(t *testing.T) {
	data := testNode(t, []byte("d")).Encode()
	_, err := Decode(append(data, data...))
	require.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestDecode_BadHash(t *testing.T) {
	rec := []byte{keyLinkHash, 0x03, 0x01, 0x02, 0x03}
	b := append([]byte{keyNodeLinks, byte(len(rec))}, rec...)
	_, err := Decode(b)
	require.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestDecode_LinkFieldsOutOfOrder(t *testing.T) {
	c := testCID(t, "a")
	hash := c.Bytes()
	rec := []byte{keyLinkTsize, 0x01, keyLinkHash}
	rec = append(rec, varint.ToUvarint(uint64(len(hash)))...)
	rec = append(rec, hash...)
	b := append([]byte{keyNodeLinks}, varint.ToUvarint(uint64(len(rec)))...)
	b = append(b, rec...)
	_, err := Decode(b)
	require.ErrorIs(t, err, ErrMalformedEncoding)
}
