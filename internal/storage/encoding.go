package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

// decodeVector is the inverse of encodeVector. dims, when positive, must match
// the blob length.
func decodeVector(b []byte, dims int) ([]float32, error) {
	const size = 4
	if len(b)%size != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of %d", len(b), size)
	}
	if dims > 0 && len(b)/size != dims {
		return nil, fmt.Errorf("embedding blob has %d values, expected %d", len(b)/size, dims)
	}
	if len(b) == 0 {
		return nil, nil
	}
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out, nil
}
