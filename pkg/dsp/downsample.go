// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsp

import "math"

// PointsPerPixel is the target point density used to size a client's
// downsample target from its reported display width (spec.md §4.6).
const PointsPerPixel = 2

// AssumedWindowSeconds is the window duration the stride-decimation factor
// is computed against, regardless of how long the actual packet is
// (spec.md Testable Property 4).
const AssumedWindowSeconds = 120

// Downsampled is the result of stride-decimating one channel's samples for
// delivery to one client.
type Downsampled struct {
	Samples             []float64
	Stride              int
	EffectiveSampleRate float64
	OriginalLength      int
	DownsampledLength   int
}

// Stride computes the decimation factor for a channel sampled at samprate
// being displayed at widthPx pixels, per spec.md Testable Property 4:
//
//	factor = max(1, floor((120 * samprate) / (widthPx * PointsPerPixel)))
func Stride(samprate int, widthPx int) int {
	if widthPx <= 0 {
		widthPx = 1000
	}
	target := widthPx * PointsPerPixel
	factor := (AssumedWindowSeconds * samprate) / target
	if factor < 1 {
		factor = 1
	}
	return factor
}

// Downsample decimates samples by simple stride selection (no filter: the
// signal is already band-limited by the pipeline's low-pass stage). The
// emitted length always equals ceil(len(samples)/stride).
func Downsample(samples []float64, samprate int, widthPx int) Downsampled {
	stride := Stride(samprate, widthPx)
	n := len(samples)
	outLen := 0
	if n > 0 {
		outLen = int(math.Ceil(float64(n) / float64(stride)))
	}
	out := make([]float64, 0, outLen)
	for i := 0; i < n; i += stride {
		out = append(out, samples[i])
	}
	return Downsampled{
		Samples:             out,
		Stride:              stride,
		EffectiveSampleRate: float64(samprate) / float64(stride),
		OriginalLength:      n,
		DownsampledLength:   len(out),
	}
}
