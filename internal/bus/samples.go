// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeSamples interprets raw as a little-endian array of the given dtype
// and returns it as float64. Per spec.md §9's resolution of the dtype
// ambiguity between source drafts, dtype is read per-record from the
// stream's `datatype` field rather than assumed fixed:
//
//	"i2" -> int16, "i4" -> int32, "f4" -> float32, "f8" -> float64
func DecodeSamples(dtype string, raw []byte) ([]float64, error) {
	switch dtype {
	case "i2":
		return decodeFixed(raw, 2, func(b []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(b)))
		})
	case "i4", "":
		// Empty datatype defaults to the newer drafts' int32 convention.
		return decodeFixed(raw, 4, func(b []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(b)))
		})
	case "f4":
		return decodeFixed(raw, 4, func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		})
	case "f8":
		return decodeFixed(raw, 8, func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		})
	default:
		return nil, fmt.Errorf("bus: unknown sample datatype %q", dtype)
	}
}

func decodeFixed(raw []byte, width int, convert func([]byte) float64) ([]float64, error) {
	if len(raw)%width != 0 {
		return nil, fmt.Errorf("bus: sample payload length %d is not a multiple of dtype width %d", len(raw), width)
	}
	n := len(raw) / width
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = convert(raw[i*width : i*width+width])
	}
	return out, nil
}
