package db

import (
	"encoding/binary"
	"math"
)

// VectorToBytes encodes a float32 vector as the little-endian byte blob
// RediSearch expects for VECTOR hash fields and KNN PARAMS.
func VectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// BytesToVector decodes the little-endian blob back into a float32 vector.
func BytesToVector(data string) []float32 {
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(data[i*4 : i*4+4])))
	}
	return vec
}
