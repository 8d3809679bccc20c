package dag

import (
	"encoding/base64"
	"fmt"
	"testing"

	gocid "github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON_DataAndLinks(t *testing.T) {
	a := testCID(t, "a")
	body := fmt.Sprintf(`{"Data":"hello","Links":[{"Name":"x","Hash":%q,"Size":42}]}`, a)

	n, err := DecodeJSON([]byte(body), DataEncodingText, gocid.Undef)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), n.Data())
	assert.Equal(t, []Link{NewLink("x", a, 42)}, n.Links())

	want := testNode(t, []byte("hello"), NewLink("x", a, 42))
	assert.True(t, want.Cid().Equals(n.Cid()))
}

func TestDecodeJSON_SuppliedCid(t *testing.T) {
	c, err := gocid.Decode(emptyDirCID)
	require.NoError(t, err)
	n, err := DecodeJSON([]byte(`{"Links":[]}`), DataEncodingText, c)
	require.NoError(t, err)
	assert.False(t, n.HasData())
	assert.Equal(t, 0, n.NumLinks())
	assert.Equal(t, emptyDirCID, n.Cid().String())
}

func TestDecodeJSON_MissingHash(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"Links":[{"Name":"x","Size":1}]}`), DataEncodingText, gocid.Undef)
	require.ErrorIs(t, err, ErrMissingField)

	_, err = DecodeJSONLinks([]byte(`{"Links":[{"Name":"x","Hash":""}]}`))
	require.ErrorIs(t, err, ErrMissingField)
}

func TestDecodeJSON_MissingNameAndSize(t *testing.T) {
	a := testCID(t, "a")
	links, err := DecodeJSONLinks([]byte(fmt.Sprintf(`{"Links":[{"Hash":%q}]}`, a)))
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "", links[0].Name)
	assert.Equal(t, uint64(0), links[0].Size)
	assert.True(t, a.Equals(links[0].Cid))
}

func TestDecodeJSON_LinkOrderPreserved(t *testing.T) {
	a := testCID(t, "a")
	b := testCID(t, "b")
	body := fmt.Sprintf(`{"Links":[{"Name":"2","Hash":%q},{"Name":"1","Hash":%q},{"Name":"2","Hash":%q}]}`, b, a, b)
	links, err := DecodeJSONLinks([]byte(body))
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "2", links[0].Name)
	assert.Equal(t, "1", links[1].Name)
	assert.Equal(t, "2", links[2].Name)
}

func TestDecodeJSON_BadHash(t *testing.T) {
	_, err := DecodeJSONLinks([]byte(`{"Links":[{"Hash":"nope"}]}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingField)
}

func TestDecodeJSON_NegativeSize(t *testing.T) {
	a := testCID(t, "a")
	_, err := DecodeJSONLinks([]byte(fmt.Sprintf(`{"Links":[{"Hash":%q,"Size":-1}]}`, a)))
	require.Error(t, err)
}

func TestDecodeJSON_NotJSON(t *testing.T) {
	_, err := DecodeJSON([]byte(`<html>`), DataEncodingText, gocid.Undef)
	require.Error(t, err)
}

func TestDecodeJSON_Base64Data(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0x00, 0x80}
	body := fmt.Sprintf(`{"Data":%q}`, base64.StdEncoding.EncodeToString(raw))
	n, err := DecodeJSON([]byte(body), DataEncodingBase64, gocid.Undef)
	require.NoError(t, err)
	assert.Equal(t, raw, n.Data())

	_, err = DecodeJSON([]byte(`{"Data":"!!"}`), DataEncodingBase64, gocid.Undef)
	require.Error(t, err)
}

func TestDecodeJSON_TextDataIsLossy(t *testing.T) {
	// The store renders invalid UTF-8 with replacement characters; the
	// client cannot recover the original bytes from text.
	n, err := DecodeJSON([]byte(`{"Data":"�"}`), DataEncodingText, gocid.Undef)
	require.NoError(t, err)
	assert.NotEqual(t, []byte{0xff}, n.Data())
}

func TestParseDataEncoding(t *testing.T) {
	for in, want := range map[string]DataEncoding{"": DataEncodingText, "text": DataEncodingText, "base64": DataEncodingBase64} {
		got, err := ParseDataEncoding(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NotEmpty(t, got.String())
	}
	_, err := ParseDataEncoding("hex")
	require.Error(t, err)
}
