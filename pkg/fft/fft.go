package fft

// Two dimensional FFTs over row-major complex grids, built out of the
// 1D complex transforms in gonum's dsp/fourier package: transform every
// row, then every column.
//
// A Plan owns scratch buffers and gonum's work arrays, so it is not
// safe for concurrent use; give each goroutine its own.

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

type Plan struct {
	w, h   int
	rowFFT *fourier.CmplxFFT
	colFFT *fourier.CmplxFFT
	row    []complex128
	col    []complex128
}

func NewPlan(w, h int) *Plan {
	return &Plan{
		w:      w,
		h:      h,
		rowFFT: fourier.NewCmplxFFT(w),
		colFFT: fourier.NewCmplxFFT(h),
		row:    make([]complex128, w),
		col:    make([]complex128, h),
	}
}

func (p *Plan) Dx() int { return p.w }
func (p *Plan) Dy() int { return p.h }

// Forward replaces the w*h row-major values in `a` with their 2D
// Fourier coefficients.
func (p *Plan) Forward(a []complex128) { p.transform(a, true) }

// Inverse undoes Forward, including the 1/(w*h) normalisation that
// gonum leaves to the caller.
func (p *Plan) Inverse(a []complex128) {
	p.transform(a, false)
	scale := complex(1.0/float64(p.w*p.h), 0)
	for i := range a {
		a[i] *= scale
	}
}

func (p *Plan) transform(a []complex128, forward bool) {
	if len(a) != p.w*p.h {
		panic("fft: grid size does not match plan")
	}

	// rows
	for y := 0; y < p.h; y++ {
		copy(p.row, a[y*p.w:(y+1)*p.w])
		if forward {
			p.rowFFT.Coefficients(p.row, p.row)
		} else {
			p.rowFFT.Sequence(p.row, p.row)
		}
		copy(a[y*p.w:(y+1)*p.w], p.row)
	}

	// cols
	for x := 0; x < p.w; x++ {
		for y := 0; y < p.h; y++ {
			p.col[y] = a[y*p.w+x]
		}
		if forward {
			p.colFFT.Coefficients(p.col, p.col)
		} else {
			p.colFFT.Sequence(p.col, p.col)
		}
		for y := 0; y < p.h; y++ {
			a[y*p.w+x] = p.col[y]
		}
	}
}

// NextPow2 returns the smallest power of two that is >= n.
func NextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
