package tracking

import (
	"errors"
	"math"
)

// Jonker-Volgenant solver for the linear assignment problem, used to match
// predicted tracks against fresh detections under a cost threshold.

const unassignedCost = 1000000.0

// assign solves the rectangular assignment problem for the given cost
// matrix. Rows are tracks, columns detections. Pairs whose cost exceeds
// costLimit stay unmatched.
func assign(cost [][]float32, numRows, numCols int, costLimit float32) (matches [][2]int, unmatchedRows, unmatchedCols []int, err error) {
	if len(cost) == 0 {
		for i := 0; i < numRows; i++ {
			unmatchedRows = append(unmatchedRows, i)
		}
		for j := 0; j < numCols; j++ {
			unmatchedCols = append(unmatchedCols, j)
		}
		return
	}

	rowSol, colSol, err := solveRectangular(cost, costLimit)
	if err != nil {
		return nil, nil, nil, err
	}

	for i, j := range rowSol {
		if j >= 0 {
			matches = append(matches, [2]int{i, j})
		} else {
			unmatchedRows = append(unmatchedRows, i)
		}
	}
	for j, i := range colSol {
		if i < 0 {
			unmatchedCols = append(unmatchedCols, j)
		}
	}
	return
}

// solveRectangular pads the cost matrix to a square one, filling the
// extension with costLimit/2 so any pairing above the limit prefers the
// dummy assignment, then runs the dense JV solver.
func solveRectangular(cost [][]float32, costLimit float32) (rowSol, colSol []int, err error) {
	nRows := len(cost)
	nCols := len(cost[0])
	rowSol = make([]int, nRows)
	colSol = make([]int, nCols)

	n := nRows + nCols
	padded := make([][]float64, n)
	for i := range padded {
		padded[i] = make([]float64, n)
	}

	fill := float64(costLimit) / 2.0
	if costLimit >= float32(math.MaxFloat32) {
		maxCost := float32(-1)
		for i := range cost {
			for j := range cost[i] {
				if cost[i][j] > maxCost {
					maxCost = cost[i][j]
				}
			}
		}
		fill = float64(maxCost + 1)
	}
	for i := range padded {
		for j := range padded[i] {
			padded[i][j] = fill
		}
	}
	for i := nRows; i < n; i++ {
		for j := nCols; j < n; j++ {
			padded[i][j] = 0
		}
	}
	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			padded[i][j] = float64(cost[i][j])
		}
	}

	x := make([]int, n)
	y := make([]int, n)
	if err := lapjvDense(n, padded, x, y); err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		if x[i] >= nCols {
			x[i] = -1
		}
		if y[i] >= nRows {
			y[i] = -1
		}
	}
	copy(rowSol, x[:nRows])
	copy(colSol, y[:nCols])
	return rowSol, colSol, nil
}

// lapjvDense solves the dense square LAP with the Jonker-Volgenant
// algorithm: column reduction, augmenting row reduction, then shortest
// augmenting paths.
func lapjvDense(n int, cost [][]float64, x, y []int) error {
	freeRows := make([]int, n)
	v := make([]float64, n)

	free := columnReduction(n, cost, freeRows, x, y, v)
	for i := 0; free > 0 && i < 2; i++ {
		free = augmentingRowReduction(n, cost, free, freeRows, x, y, v)
	}
	if free > 0 {
		return augment(n, cost, free, freeRows, x, y, v)
	}
	return nil
}

// columnReduction performs column reduction and reduction transfer.
func columnReduction(n int, cost [][]float64, freeRows, x, y []int, v []float64) int {
	unique := make([]bool, n)

	for i := 0; i < n; i++ {
		x[i] = -1
		v[i] = unassignedCost
		y[i] = 0
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if c := cost[i][j]; c < v[j] {
				v[j] = c
				y[j] = i
			}
		}
	}

	for i := range unique {
		unique[i] = true
	}

	for j := n - 1; j >= 0; j-- {
		i := y[j]
		if x[i] < 0 {
			x[i] = j
		} else {
			unique[i] = false
			y[j] = -1
		}
	}

	nFree := 0
	for i := 0; i < n; i++ {
		if x[i] < 0 {
			freeRows[nFree] = i
			nFree++
		} else if unique[i] {
			j := x[i]
			minVal := float64(unassignedCost)
			for j2 := 0; j2 < n; j2++ {
				if j2 == j {
					continue
				}
				if c := cost[i][j2] - v[j2]; c < minVal {
					minVal = c
				}
			}
			v[j] -= minVal
		}
	}
	return nFree
}

// augmentingRowReduction runs one pass of augmenting row reduction.
func augmentingRowReduction(n int, cost [][]float64, nFreeRows int, freeRows, x, y []int, v []float64) int {
	current := 0
	newFree := 0
	rrCnt := 0

	for current < nFreeRows {
		rrCnt++
		freeI := freeRows[current]
		current++

		j1 := 0
		v1 := cost[freeI][0] - v[0]
		j2 := -1
		v2 := float64(unassignedCost)

		for j := 1; j < n; j++ {
			c := cost[freeI][j] - v[j]
			if c < v2 {
				if c >= v1 {
					v2 = c
					j2 = j
				} else {
					v2 = v1
					v1 = c
					j2 = j1
					j1 = j
				}
			}
		}

		i0 := y[j1]
		v1New := v[j1] - (v2 - v1)
		v1Lowers := v1New < v[j1]

		if rrCnt < current*n {
			if v1Lowers {
				v[j1] = v1New
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = y[j2]
			}

			if i0 >= 0 {
				if v1Lowers {
					current--
					freeRows[current] = i0
				} else {
					freeRows[newFree] = i0
					newFree++
				}
			}
		} else if i0 >= 0 {
			freeRows[newFree] = i0
			newFree++
		}

		x[freeI] = j1
		y[j1] = freeI
	}
	return newFree
}

// scanReady moves columns with minimal d onto the scan list.
func scanReady(n, lo int, d []float64, cols []int) int {
	hi := lo + 1
	mind := d[cols[lo]]

	for k := hi; k < n; k++ {
		j := cols[k]
		if d[j] <= mind {
			if d[j] < mind {
				hi = lo
				mind = d[j]
			}
			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}
	return hi
}

// scanColumns tries to lower d of the remaining columns using the columns
// already on the scan list, returning an unassigned column when found.
func scanColumns(n int, cost [][]float64, lo, hi *int, d []float64, cols, pred, y []int, v []float64) int {
	for *lo != *hi {
		j := cols[*lo]
		*lo++
		i := y[j]
		mind := d[j]
		h := cost[i][j] - v[j] - mind

		for k := *hi; k < n; k++ {
			j = cols[k]
			cred := cost[i][j] - v[j] - h
			if cred < d[j] {
				d[j] = cred
				pred[j] = i
				if cred == mind {
					if y[j] < 0 {
						return j
					}
					cols[k] = cols[*hi]
					cols[*hi] = j
					(*hi)++
				}
			}
		}
	}
	return -1
}

// shortestPath runs one iteration of the modified Dijkstra search from the
// JV paper, returning the endpoint column of an augmenting path.
func shortestPath(n int, cost [][]float64, startI int, y []int, v []float64, pred []int) int {
	lo, hi := 0, 0
	finalJ := -1
	nReady := 0
	cols := make([]int, n)
	d := make([]float64, n)

	for i := 0; i < n; i++ {
		cols[i] = i
		pred[i] = startI
		d[i] = cost[startI][i] - v[i]
	}

	for finalJ == -1 {
		if lo == hi {
			nReady = lo
			hi = scanReady(n, lo, d, cols)
			for k := lo; k < hi; k++ {
				if j := cols[k]; y[j] < 0 {
					finalJ = j
				}
			}
		}
		if finalJ == -1 {
			finalJ = scanColumns(n, cost, &lo, &hi, d, cols, pred, y, v)
		}
	}

	mind := d[cols[lo]]
	for k := 0; k < nReady; k++ {
		j := cols[k]
		v[j] += d[j] - mind
	}
	return finalJ
}

// augment resolves the remaining free rows through shortest augmenting paths.
func augment(n int, cost [][]float64, nFreeRows int, freeRows, x, y []int, v []float64) error {
	pred := make([]int, n)

	for _, freeI := range freeRows[:nFreeRows] {
		i := -1
		k := 0

		j := shortestPath(n, cost, freeI, y, v, pred)
		if j < 0 || j >= n {
			return errors.New("augmenting path ended outside the matrix")
		}

		for i != freeI {
			i = pred[j]
			y[j] = i
			j, x[i] = x[i], j
			k++
			if k >= n {
				return errors.New("augmenting path cycled")
			}
		}
	}
	return nil
}
