package object

import (
	"encoding/json"
	"fmt"
)

// Stat summarizes a node as reported by the daemon. The client never
// computes these values itself.
type Stat struct {
	LinkCount      int
	LinkSize       int64
	BlockSize      int64
	DataSize       int64
	CumulativeSize int64
}

// decodeStat parses an object/stat response. Absent counters are zero so
// that daemons which omit optional fields still yield a Stat.
func decodeStat(body []byte) (*Stat, error) {
	var r struct {
		NumLinks       *int   `json:"NumLinks"`
		LinksSize      *int64 `json:"LinksSize"`
		BlockSize      *int64 `json:"BlockSize"`
		DataSize       *int64 `json:"DataSize"`
		CumulativeSize *int64 `json:"CumulativeSize"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode stat json: %w", err)
	}
	return &Stat{
		LinkCount:      orZero(r.NumLinks),
		LinkSize:       orZero(r.LinksSize),
		BlockSize:      orZero(r.BlockSize),
		DataSize:       orZero(r.DataSize),
		CumulativeSize: orZero(r.CumulativeSize),
	}, nil
}

func orZero[T int | int64](p *T) T {
	if p == nil {
		return 0
	}
	return *p
}
