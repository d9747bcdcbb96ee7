// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dsp implements the small first-party signal-processing primitives
// the dispatcher needs: a Butterworth low-pass filter built from its
// second-order-sections (SOS) representation, and the batch/taper/downsample
// helpers layered on top of it. No scientific-computing framework is used;
// the filter design only needs complex arithmetic over a handful of poles.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Biquad is one second-order section of a cascaded IIR filter, evaluated in
// direct form I and normalized so that a0 == 1:
//
//	y[n] = B0*x[n] + B1*x[n-1] + B2*x[n-2] - A1*y[n-1] - A2*y[n-2]
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// SOS is a cascade of Biquad sections applied in order.
type SOS struct {
	Sections []Biquad
}

// DesignLowpass builds the SOS representation of an `order`-pole Butterworth
// low-pass filter with corner frequency cutoffHz at sampleRateHz, via the
// bilinear transform of the analog prototype. order must be even (the
// dispatcher only ever asks for order 4, i.e. two cascaded biquads).
func DesignLowpass(order int, cutoffHz, sampleRateHz float64) (SOS, error) {
	if order <= 0 || order%2 != 0 {
		return SOS{}, fmt.Errorf("dsp: butterworth order must be a positive even number, got %d", order)
	}
	if cutoffHz <= 0 || sampleRateHz <= 0 || cutoffHz >= sampleRateHz/2 {
		return SOS{}, fmt.Errorf("dsp: invalid cutoff %.3fHz for sample rate %.3fHz", cutoffHz, sampleRateHz)
	}

	// Pre-warp the digital cutoff onto the analog frequency axis so the
	// bilinear transform lands the corner at the right place.
	warped := 2 * sampleRateHz * math.Tan(math.Pi*cutoffHz/sampleRateHz)

	// Analog Butterworth prototype poles (unit cutoff), scaled by the
	// pre-warped cutoff. All poles lie in the left half-plane; the filter
	// has no finite zeros (they sit at infinity).
	poles := make([]complex128, order)
	for k := 0; k < order; k++ {
		theta := math.Pi * (2*float64(k+1) + float64(order) - 1) / (2 * float64(order))
		poles[k] = complex(warped, 0) * cmplx.Exp(complex(0, theta))
	}

	// Bilinear transform maps each analog pole to a digital pole, and every
	// zero-at-infinity to a digital zero at z = -1.
	twoFs := 2 * sampleRateHz
	digitalPoles := make([]complex128, order)
	for i, p := range poles {
		digitalPoles[i] = (complex(twoFs, 0) + p) / (complex(twoFs, 0) - p)
	}

	sections := make([]Biquad, 0, order/2)
	used := make([]bool, order)
	for i := range digitalPoles {
		if used[i] {
			continue
		}
		p := digitalPoles[i]
		// Pair with its conjugate (Butterworth poles always come in
		// conjugate pairs for even order).
		partner := -1
		for j := i + 1; j < order; j++ {
			if used[j] {
				continue
			}
			if cmplx.Abs(digitalPoles[j]-cmplx.Conj(p)) < 1e-9*(1+cmplx.Abs(p)) {
				partner = j
				break
			}
		}
		if partner == -1 {
			return SOS{}, fmt.Errorf("dsp: butterworth poles did not pair up (order=%d)", order)
		}
		used[i] = true
		used[partner] = true

		a1 := -2 * real(p)
		a2 := real(p)*real(p) + imag(p)*imag(p)
		// Numerator (z+1)^2 == z^2 + 2z + 1 for each section; overall DC
		// gain is normalized once, across the whole cascade, below.
		sections = append(sections, Biquad{B0: 1, B1: 2, B2: 1, A1: a1, A2: a2})
	}

	normalizeDCGain(sections)
	return SOS{Sections: sections}, nil
}

// normalizeDCGain scales the first section's numerator so the cascade has
// unit gain at DC (z = 1), which is where a low-pass filter's gain must be 1.
func normalizeDCGain(sections []Biquad) {
	gain := 1.0
	for _, s := range sections {
		num := s.B0 + s.B1 + s.B2
		den := 1 + s.A1 + s.A2
		gain *= num / den
	}
	if gain == 0 {
		return
	}
	scale := 1 / gain
	sections[0].B0 *= scale
	sections[0].B1 *= scale
	sections[0].B2 *= scale
}

// Apply runs the cascade forward over x in place-compatible fashion,
// returning a newly allocated output slice the same length as x.
func (s SOS) Apply(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	for _, sec := range s.Sections {
		sec.applyInPlace(out)
	}
	return out
}

// applyInPlace runs one biquad section forward over buf, overwriting it.
func (b Biquad) applyInPlace(buf []float64) {
	var x1, x2, y1, y2 float64
	for i, x0 := range buf {
		y0 := b.B0*x0 + b.B1*x1 + b.B2*x2 - b.A1*y1 - b.A2*y2
		buf[i] = y0
		x2, x1 = x1, x0
		y2, y1 = y1, y0
	}
}
