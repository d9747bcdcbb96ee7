// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSamplesInt32(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:4], uint32(int32(-5)))
	binary.LittleEndian.PutUint32(raw[4:8], uint32(int32(1000)))

	out, err := DecodeSamples("i4", raw)
	require.NoError(t, err)
	assert.Equal(t, []float64{-5, 1000}, out)
}

func TestDecodeSamplesInt16(t *testing.T) {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint16(raw[0:2], uint16(int16(-2)))
	binary.LittleEndian.PutUint16(raw[2:4], uint16(int16(32000)))

	out, err := DecodeSamples("i2", raw)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, 32000}, out)
}

func TestDecodeSamplesFloat32AndFloat64(t *testing.T) {
	raw4 := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw4, math.Float32bits(3.5))
	out, err := DecodeSamples("f4", raw4)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, out[0], 1e-6)

	raw8 := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw8, math.Float64bits(-7.25))
	out, err = DecodeSamples("f8", raw8)
	require.NoError(t, err)
	assert.InDelta(t, -7.25, out[0], 1e-12)
}

func TestDecodeSamplesEmptyDatatypeDefaultsToInt32(t *testing.T) {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, uint32(int32(42)))
	out, err := DecodeSamples("", raw)
	require.NoError(t, err)
	assert.Equal(t, []float64{42}, out)
}

func TestDecodeSamplesRejectsUnknownDtype(t *testing.T) {
	_, err := DecodeSamples("i9", []byte{1, 2, 3, 4})
	assert.Error(t, err)
}

func TestDecodeSamplesRejectsMisalignedPayload(t *testing.T) {
	_, err := DecodeSamples("i4", []byte{1, 2, 3})
	assert.Error(t, err)
}
