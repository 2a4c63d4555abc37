package mie

import (
	"math"
	"math/cmplx"
)

// series holds the external field coefficients a_n, b_n (n = 1..N, stored at
// index n-1) for one size parameter and relative index.
type series struct {
	x float64
	a []complex128
	b []complex128
}

// nStop is the Wiscombe series truncation x + 4x^(1/3) + 2.
func nStop(x float64) int {
	return int(x + 4*math.Cbrt(x) + 2)
}

// newSeries evaluates the coefficients with the Bohren–Huffman recurrences.
// The logarithmic derivative D_n(mx) is computed by downward recurrence,
// which is stable for all relative indices of interest.
func newSeries(x float64, m complex128) series {
	nstop := nStop(x)
	y := m * complex(x, 0)
	nmx := nstop
	if ay := int(cmplx.Abs(y)); ay > nmx {
		nmx = ay
	}
	nmx += 15

	d := make([]complex128, nmx+1)
	for n := nmx; n >= 1; n-- {
		en := complex(float64(n), 0)
		d[n-1] = en/y - 1/(d[n]+en/y)
	}

	s := series{x: x, a: make([]complex128, nstop), b: make([]complex128, nstop)}

	psi0, psi1 := math.Cos(x), math.Sin(x)
	chi0, chi1 := -math.Sin(x), math.Cos(x)
	xi1 := complex(psi1, -chi1)

	for n := 1; n <= nstop; n++ {
		fn := float64(n)
		psi := (2*fn-1)*psi1/x - psi0
		chi := (2*fn-1)*chi1/x - chi0
		xi := complex(psi, -chi)

		nx := complex(fn/x, 0)
		da := d[n]/m + nx
		db := m*d[n] + nx
		s.a[n-1] = (da*complex(psi, 0) - complex(psi1, 0)) / (da*xi - xi1)
		s.b[n-1] = (db*complex(psi, 0) - complex(psi1, 0)) / (db*xi - xi1)

		psi0, psi1 = psi1, psi
		chi0, chi1 = chi1, chi
		xi1 = complex(psi1, -chi1)
	}
	return s
}

// efficiencies returns Qext, Qsca, Qback and the asymmetry parameter g.
func (s series) efficiencies() (qext, qsca, qback, g float64) {
	var sumExt, sumSca, gsca float64
	var back complex128
	sign := -1.0
	for i := range s.a {
		n := float64(i + 1)
		an, bn := s.a[i], s.b[i]
		w := 2*n + 1
		sumExt += w * real(an+bn)
		sumSca += w * (sqAbs(an) + sqAbs(bn))
		back += complex(w*sign, 0) * (an - bn)
		sign = -sign

		gsca += w / (n * (n + 1)) * real(an*cmplx.Conj(bn))
		if i > 0 {
			a1, b1 := s.a[i-1], s.b[i-1]
			gsca += (n - 1) * (n + 1) / n * real(a1*cmplx.Conj(an)+b1*cmplx.Conj(bn))
		}
	}
	x2 := s.x * s.x
	qext = 2 / x2 * sumExt
	qsca = 2 / x2 * sumSca
	qback = sqAbs(back) / x2
	if sumSca > 0 {
		g = 2 * gsca / sumSca
	}
	return qext, qsca, qback, g
}

// amplitudes returns the scattering amplitude functions S1 and S2 at
// mu = cos θ using the upward π_n, τ_n recurrences.
func (s series) amplitudes(mu float64) (s1, s2 complex128) {
	pi0, pi1 := 0.0, 1.0
	for i := range s.a {
		n := float64(i + 1)
		tau := n*mu*pi1 - (n+1)*pi0
		f := (2*n + 1) / (n * (n + 1))
		s1 += complex(f, 0) * (s.a[i]*complex(pi1, 0) + s.b[i]*complex(tau, 0))
		s2 += complex(f, 0) * (s.a[i]*complex(tau, 0) + s.b[i]*complex(pi1, 0))

		pi0, pi1 = pi1, ((2*n+1)*mu*pi1-(n+1)*pi0)/n
	}
	return s1, s2
}

func sqAbs(z complex128) float64 {
	return real(z)*real(z) + imag(z)*imag(z)
}
