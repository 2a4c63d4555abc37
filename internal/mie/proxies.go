package mie

import "math"

// minConeIntervals is the Simpson panel count floor for a collection cone.
// Narrow cones get at least this many panels; wider cones and larger spheres
// get more so the angular lobes stay resolved.
const minConeIntervals = 48

// coneCrossSection integrates the unpolarised differential scattering cross
// section (|S1|²+|S2|²)/(2k²) over the solid angle between polar angles
// lo and hi (degrees). Over 0°–180° it reproduces Qsca·πr².
func coneCrossSection(s series, k, loDeg, hiDeg float64) float64 {
	lo := loDeg * math.Pi / 180
	hi := hiDeg * math.Pi / 180

	// Angular structure scales with the number of terms kept.
	n := minConeIntervals
	if lobes := int(float64(len(s.a)) * (hi - lo) / math.Pi * 16); lobes > n {
		n = lobes
	}
	if n%2 == 1 {
		n++
	}

	h := (hi - lo) / float64(n)
	f := func(theta float64) float64 {
		s1, s2 := s.amplitudes(math.Cos(theta))
		return (sqAbs(s1) + sqAbs(s2)) * math.Sin(theta)
	}

	sum := f(lo) + f(hi)
	for i := 1; i < n; i++ {
		w := 2.0
		if i%2 == 1 {
			w = 4
		}
		sum += w * f(lo+float64(i)*h)
	}
	integral := sum * h / 3
	return 2 * math.Pi * integral / (2 * k * k)
}
