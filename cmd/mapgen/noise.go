package main

import (
	"math"
	"math/rand"
)

// simplex is a seeded 2D simplex noise source.
type simplex struct {
	perm [512]uint8
}

func newSimplex(seed int64) *simplex {
	r := rand.New(rand.NewSource(seed))
	s := &simplex{}
	p := r.Perm(256)
	for i := range s.perm {
		s.perm[i] = uint8(p[i&255])
	}
	return s
}

const (
	skew   = 0.3660254037844386  // (sqrt(3) - 1) / 2
	unskew = 0.21132486540518713 // (3 - sqrt(3)) / 6
)

func gradient(hash uint8, x, y float64) float64 {
	h := hash & 7
	u, v := x, y
	if h >= 4 {
		u, v = y, x
	}
	if h&1 != 0 {
		u = -u
	}
	if h&2 != 0 {
		v = -v
	}
	return u + v
}

func corner(hash uint8, x, y float64) float64 {
	t := 0.5 - x*x - y*y
	if t <= 0 {
		return 0
	}
	t *= t
	return t * t * gradient(hash, x, y)
}

// at returns noise in [-1, 1].
func (s *simplex) at(x, y float64) float64 {
	k := (x + y) * skew
	i := math.Floor(x + k)
	j := math.Floor(y + k)

	t := (i + j) * unskew
	x0 := x - (i - t)
	y0 := y - (j - t)

	i1, j1 := 0, 1
	if x0 > y0 {
		i1, j1 = 1, 0
	}
	x1 := x0 - float64(i1) + unskew
	y1 := y0 - float64(j1) + unskew
	x2 := x0 - 1 + 2*unskew
	y2 := y0 - 1 + 2*unskew

	ii := int(i) & 255
	jj := int(j) & 255
	p := &s.perm
	n := corner(p[ii+int(p[jj])], x0, y0) +
		corner(p[ii+i1+int(p[jj+j1])], x1, y1) +
		corner(p[ii+1+int(p[jj+1])], x2, y2)
	return 70 * n
}

// fbm sums octaves of noise and normalizes to [0, 1].
func (s *simplex) fbm(x, y, freq float64, octaves int) float64 {
	var total, norm float64
	amp := 1.0
	for o := 0; o < octaves; o++ {
		total += s.at(x*freq, y*freq) * amp
		norm += amp
		freq *= 2
		amp *= 0.5
	}
	return (total/norm + 1) / 2
}
