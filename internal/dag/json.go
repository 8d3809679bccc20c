package dag

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	gocid "github.com/ipfs/go-cid"
)

// DataEncoding selects how the store renders node data in JSON responses.
type DataEncoding int

const (
	// DataEncodingText is the store default: data as a UTF-8 string. Payloads
	// that are not valid UTF-8 do not survive this encoding; the store
	// replaces invalid sequences before the client sees them.
	DataEncodingText DataEncoding = iota
	// DataEncodingBase64 carries data as base64 and is lossless.
	DataEncodingBase64
)

func (e DataEncoding) String() string {
	switch e {
	case DataEncodingText:
		return "text"
	case DataEncodingBase64:
		return "base64"
	default:
		return fmt.Sprintf("DataEncoding(%d)", int(e))
	}
}

// ParseDataEncoding parses "text" or "base64". The empty string is text.
func ParseDataEncoding(s string) (DataEncoding, error) {
	switch s {
	case "", "text":
		return DataEncodingText, nil
	case "base64":
		return DataEncodingBase64, nil
	default:
		return 0, fmt.Errorf("unknown data encoding %q", s)
	}
}

type jsonLink struct {
	Name *string `json:"Name"`
	Hash *string `json:"Hash"`
	Size *int64  `json:"Size"`
}

type jsonNode struct {
	Data  *string    `json:"Data"`
	Links []jsonLink `json:"Links"`
}

// DecodeJSON decodes the store's JSON rendering of a node. The JSON form
// does not carry the node's bytes, so the store's CID for it is passed as c.
// If c is undefined the CID is computed from the re-encoded node, which only
// matches the store's if the data survived enc intact.
func DecodeJSON(b []byte, enc DataEncoding, c gocid.Cid) (*Node, error) {
	var jn jsonNode
	if err := json.Unmarshal(b, &jn); err != nil {
		return nil, fmt.Errorf("decode node json: %w", err)
	}

	var data []byte
	if jn.Data != nil {
		switch enc {
		case DataEncodingBase64:
			d, err := base64.StdEncoding.DecodeString(*jn.Data)
			if err != nil {
				return nil, fmt.Errorf("decode node data: %w", err)
			}
			data = d
		default:
			data = []byte(*jn.Data)
		}
	}

	links, err := fromJSONLinks(jn.Links)
	if err != nil {
		return nil, err
	}
	if c.Defined() {
		return NewNodeWithCid(c, data, links)
	}
	return NewNode(data, links)
}

// DecodeJSONLinks decodes the links of a node from the store's JSON rendering.
func DecodeJSONLinks(b []byte) ([]Link, error) {
	var jn jsonNode
	if err := json.Unmarshal(b, &jn); err != nil {
		return nil, fmt.Errorf("decode links json: %w", err)
	}
	return fromJSONLinks(jn.Links)
}

func fromJSONLinks(jls []jsonLink) ([]Link, error) {
	if len(jls) == 0 {
		return nil, nil
	}
	links := make([]Link, 0, len(jls))
	for i, jl := range jls {
		if jl.Hash == nil || *jl.Hash == "" {
			return nil, fmt.Errorf("link %d: Hash: %w", i, ErrMissingField)
		}
		c, err := gocid.Decode(*jl.Hash)
		if err != nil {
			return nil, fmt.Errorf("link %d: Hash %q: %w", i, *jl.Hash, err)
		}
		l := Link{Cid: c}
		if jl.Name != nil {
			l.Name = *jl.Name
		}
		if jl.Size != nil {
			if *jl.Size < 0 {
				return nil, fmt.Errorf("link %d: negative Size %d", i, *jl.Size)
			}
			l.Size = uint64(*jl.Size)
		}
		links = append(links, l)
	}
	return links, nil
}
