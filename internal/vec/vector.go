// Package vec provides the fixed-length float64 parameter vector used to
// store model parameters. Go cannot check vector lengths at compile time,
// so every binary operation verifies the operand lengths and reports a
// mismatch as an error.
package vec

import "fmt"

// Vector is a fixed-length sequence of float64 parameters.
type Vector []float64

// New returns a zero vector of dimension n.
func New(n int) Vector {
	return make(Vector, n)
}

// FromSlice copies the given values into a new Vector.
func FromSlice(values []float64) Vector {
	v := make(Vector, len(values))
	copy(v, values)
	return v
}

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	return FromSlice(v)
}

// Len returns the vector's dimension.
func (v Vector) Len() int {
	return len(v)
}

// Add returns the elementwise sum v + w.
func (v Vector) Add(w Vector) (Vector, error) {
	if err := v.checkLen(w); err != nil {
		return nil, err
	}
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] + w[i]
	}
	return out, nil
}

// Sub returns the elementwise difference v - w.
func (v Vector) Sub(w Vector) (Vector, error) {
	if err := v.checkLen(w); err != nil {
		return nil, err
	}
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] - w[i]
	}
	return out, nil
}

// Dot returns the dot product of v and w.
func (v Vector) Dot(w Vector) (float64, error) {
	if err := v.checkLen(w); err != nil {
		return 0, err
	}
	var sum float64
	for i := range v {
		sum += v[i] * w[i]
	}
	return sum, nil
}

// Norm2 returns the squared euclidean norm of v.
func (v Vector) Norm2() float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return sum
}

// Dist2 returns the squared euclidean distance between v and w.
func (v Vector) Dist2(w Vector) (float64, error) {
	if err := v.checkLen(w); err != nil {
		return 0, err
	}
	var sum float64
	for i := range v {
		d := v[i] - w[i]
		sum += d * d
	}
	return sum, nil
}

func (v Vector) checkLen(w Vector) error {
	if len(v) != len(w) {
		return fmt.Errorf("vector length mismatch: %d vs %d", len(v), len(w))
	}
	return nil
}
