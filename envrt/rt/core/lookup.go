package core

import (
	"encoding/binary"
	"math"
)

// LookupTexelSize is the byte size of one RGBA32Float lookup texel.
const LookupTexelSize = 16

// BuildDirectionLookup precomputes the coordinate-conversion table for a
// width x height equirectangular map: four floats per texel holding the unit
// world direction (x, y, z) of the texel centre and a zero w.
func BuildDirectionLookup(width, height int) []float32 {
	table := make([]float32, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := TexelDirection(x, y, width, height)
			i := (y*width + x) * 4
			table[i+0] = d.X()
			table[i+1] = d.Y()
			table[i+2] = d.Z()
		}
	}
	return table
}

// LookupBytes encodes a lookup table as little-endian RGBA32Float texels.
func LookupBytes(table []float32) []byte {
	buf := make([]byte, len(table)*4)
	for i, v := range table {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
