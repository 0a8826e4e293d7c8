package storage

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/stats"
)

// Value layout, big-endian:
//
//	version(1) count(8) n(2) distinct[0](8) ... distinct[n-1](8)
//
// Floats are stored as their IEEE 754 bits.
const encodingVersion = 1

// ErrCorrupt is returned for values that do not decode
var ErrCorrupt = errors.New("corrupt statistics value")

func encodeRelation(r stats.Relation) ([]byte, error) {
	if len(r.Distinct) > math.MaxUint16 {
		return nil, errors.Newf("relation %s has %d positions, at most %d are supported",
			r.Name, len(r.Distinct), math.MaxUint16)
	}
	buf := make([]byte, 1+8+2+8*len(r.Distinct))
	buf[0] = encodingVersion
	binary.BigEndian.PutUint64(buf[1:9], math.Float64bits(r.Count))
	binary.BigEndian.PutUint16(buf[9:11], uint16(len(r.Distinct)))
	for i, d := range r.Distinct {
		off := 11 + 8*i
		binary.BigEndian.PutUint64(buf[off:off+8], math.Float64bits(d))
	}
	return buf, nil
}

func decodeRelation(name datalog.Keyword, buf []byte) (stats.Relation, error) {
	if len(buf) < 11 {
		return stats.Relation{}, errors.Wrapf(ErrCorrupt, "%s: %d bytes", name, len(buf))
	}
	if buf[0] != encodingVersion {
		return stats.Relation{}, errors.Wrapf(ErrCorrupt, "%s: unknown version %d", name, buf[0])
	}
	n := int(binary.BigEndian.Uint16(buf[9:11]))
	if len(buf) != 11+8*n {
		return stats.Relation{}, errors.Wrapf(ErrCorrupt, "%s: %d positions in %d bytes", name, n, len(buf))
	}
	r := stats.Relation{
		Name:     name,
		Count:    math.Float64frombits(binary.BigEndian.Uint64(buf[1:9])),
		Distinct: make([]float64, n),
	}
	for i := range r.Distinct {
		off := 11 + 8*i
		r.Distinct[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[off : off+8]))
	}
	return r, nil
}
