// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package locator

import "fmt"

// squareMatrix is a small dense n×n matrix, big enough for the
// locator's 4-parameter (lat, lon, depth, origin-time) normal
// equations but no larger; a full linear-algebra dependency would be
// overkill for this fixed, tiny problem size.
type squareMatrix struct {
	n    int
	data []float64 // row-major
}

func newMatrix(n int) *squareMatrix {
	return &squareMatrix{n: n, data: make([]float64, n*n)}
}

func (m *squareMatrix) at(i, j int) float64     { return m.data[i*m.n+j] }
func (m *squareMatrix) set(i, j int, v float64) { m.data[i*m.n+j] = v }
func (m *squareMatrix) add(i, j int, v float64) { m.data[i*m.n+j] += v }

// invert returns the matrix inverse via Gauss-Jordan elimination with
// partial pivoting. Only used on the small (n=4) normal-equations
// matrix, where a singular system means degenerate station geometry.
func (m *squareMatrix) invert() (*squareMatrix, error) {
	n := m.n
	aug := newMatrix(n)
	copy(aug.data, m.data)
	inv := identity(n)

	for col := 0; col < n; col++ {
		pivot := col
		best := abs(aug.at(col, col))
		for row := col + 1; row < n; row++ {
			if v := abs(aug.at(row, col)); v > best {
				pivot, best = row, v
			}
		}
		if best < 1e-12 {
			return nil, fmt.Errorf("locator: singular normal-equations matrix (degenerate station geometry)")
		}
		if pivot != col {
			swapRows(aug, col, pivot)
			swapRows(inv, col, pivot)
		}

		pv := aug.at(col, col)
		for j := 0; j < n; j++ {
			aug.set(col, j, aug.at(col, j)/pv)
			inv.set(col, j, inv.at(col, j)/pv)
		}

		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			factor := aug.at(row, col)
			if factor == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				aug.set(row, j, aug.at(row, j)-factor*aug.at(col, j))
				inv.set(row, j, inv.at(row, j)-factor*inv.at(col, j))
			}
		}
	}

	return inv, nil
}

// solve returns x such that m*x = b, via the matrix inverse.
func (m *squareMatrix) solve(b []float64) ([]float64, error) {
	inv, err := m.invert()
	if err != nil {
		return nil, err
	}
	x := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		var sum float64
		for j := 0; j < m.n; j++ {
			sum += inv.at(i, j) * b[j]
		}
		x[i] = sum
	}
	return x, nil
}

func identity(n int) *squareMatrix {
	m := newMatrix(n)
	for i := 0; i < n; i++ {
		m.set(i, i, 1)
	}
	return m
}

func swapRows(m *squareMatrix, a, b int) {
	for j := 0; j < m.n; j++ {
		m.data[a*m.n+j], m.data[b*m.n+j] = m.data[b*m.n+j], m.data[a*m.n+j]
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
