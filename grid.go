package toponym

import (
	"fmt"
	"math"
	"slices"
)

// NoCell is returned for grid coordinates outside the grid.
const NoCell = -1

// DefaultDPC is the cell size, in degrees, used when none is configured.
const DefaultDPC = 1.0

// Grid divides the globe into square latitude/longitude cells of DPC
// (degrees-per-cell) on each side.
//
// Internally the grid works on shifted coordinates, latitude in [0,180) and
// longitude in [0,360), so that row and column indexes are non-negative. A
// cell id is row*Cols()+col, which makes ids dense and invertible.
//
// The grid does not wrap at the 0/360 longitude seam: cells in the first and
// last columns have no left or right neighbour respectively.
type Grid struct {
	dpc  float64
	rows int
	cols int
}

// NewGrid creates a grid with the given degrees per cell.
func NewGrid(dpc float64) (Grid, error) {
	if !(dpc > 0 && dpc <= 180) || math.IsNaN(dpc) {
		return Grid{}, fmt.Errorf("grid with dpc %v: %w", dpc, ErrInvalidDPC)
	}
	return Grid{
		dpc:  dpc,
		rows: int(math.Ceil(180 / dpc)),
		cols: int(math.Ceil(360 / dpc)),
	}, nil
}

// MustGrid is NewGrid for constant, known-valid cell sizes.
func MustGrid(dpc float64) Grid {
	g, err := NewGrid(dpc)
	if err != nil {
		panic(err)
	}
	return g
}

// DPC returns the cell size in degrees.
func (g Grid) DPC() float64 { return g.dpc }

// Rows returns the number of latitude bands.
func (g Grid) Rows() int { return g.rows }

// Cols returns the number of longitude bands.
func (g Grid) Cols() int { return g.cols }

// Size returns the total number of cells.
func (g Grid) Size() int { return g.rows * g.cols }

// CellID returns the id of the cell containing the geographic coordinate.
// Coordinates on the north pole or the antimeridian fall into the last
// row/column.
func (g Grid) CellID(lat, lng float64) int {
	return g.cellAt(g.row(lat), g.col(lng))
}

func (g Grid) row(lat float64) int {
	return clamp(int(math.Floor((lat+90)/g.dpc)), 0, g.rows-1)
}

func (g Grid) col(lng float64) int {
	return clamp(int(math.Floor((lng+180)/g.dpc)), 0, g.cols-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cellAt encodes a row/column pair, returning NoCell when it is off the grid.
func (g Grid) cellAt(row, col int) int {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return NoCell
	}
	return row*g.cols + col
}

// RowCol decodes a cell id.
func (g Grid) RowCol(id int) (row, col int, ok bool) {
	if id < 0 || id >= g.Size() {
		return 0, 0, false
	}
	return id / g.cols, id % g.cols, true
}

// CellBounds returns the geographic rectangle covered by a cell.
func (g Grid) CellBounds(id int) (RectRegion, bool) {
	row, col, ok := g.RowCol(id)
	if !ok {
		return RectRegion{}, false
	}
	minLat := float64(row)*g.dpc - 90
	minLng := float64(col)*g.dpc - 180
	return NewRectRegion(minLat, minLng, math.Min(minLat+g.dpc, 90), math.Min(minLng+g.dpc, 180)), true
}

// CellIDs returns the ids of every cell overlapping the region, in row-major
// order. A point yields exactly one cell; a bounding box yields more than one
// only when it straddles a cell boundary. A box edge lying on a boundary
// belongs to the cell inside the box.
func (g Grid) CellIDs(r Region) []int {
	if r == nil {
		return nil
	}
	if p, ok := r.(PointRegion); ok {
		return []int{g.CellID(p.LatLng.Lat.Degrees(), p.LatLng.Lng.Degrees())}
	}
	b := r.Bounds()
	if b.IsEmpty() {
		return nil
	}
	lo, hi := b.Lo(), b.Hi()
	r0, r1 := g.bandRange(lo.Lat.Degrees()+90, hi.Lat.Degrees()+90, g.rows)

	var cols []int
	if !b.Lng.IsInverted() {
		c0, c1 := g.bandRange(lo.Lng.Degrees()+180, hi.Lng.Degrees()+180, g.cols)
		for c := c0; c <= c1; c++ {
			cols = append(cols, c)
		}
	} else { // box crosses the antimeridian
		c0, _ := g.bandRange(lo.Lng.Degrees()+180, 360, g.cols)
		_, c1 := g.bandRange(0, hi.Lng.Degrees()+180, g.cols)
		for c := c0; c < g.cols; c++ {
			cols = append(cols, c)
		}
		for c := 0; c <= c1; c++ {
			cols = append(cols, c)
		}
	}

	ids := make([]int, 0, (r1-r0+1)*len(cols))
	for row := r0; row <= r1; row++ {
		for _, c := range cols {
			ids = append(ids, g.cellAt(row, c))
		}
	}
	return ids
}

// boundaryEpsilon absorbs the error of a degrees/radians round trip, so that
// a box built from cell bounds maps back to that cell.
const boundaryEpsilon = 1e-9

// bandRange returns the first and last band, of n, overlapped by the shifted
// interval [lo, hi]. An upper end on a band boundary does not reach the next
// band.
func (g Grid) bandRange(lo, hi float64, n int) (first, last int) {
	first = clamp(int(math.Floor(lo/g.dpc+boundaryEpsilon)), 0, n-1)
	last = clamp(int(math.Ceil(hi/g.dpc-boundaryEpsilon))-1, first, n-1)
	return first, last
}

// Contains reports whether the location overlaps the cell.
func (g Grid) Contains(id int, loc Location) bool {
	return slices.Contains(g.CellIDs(loc.Region), id)
}

// Neighbor directions, in the order EachAdjacency emits them.
const (
	Left = iota
	Right
	Top
	Bottom
)

// Neighbors returns the left, right, top and bottom neighbours of a cell,
// using NoCell for neighbours that fall off the grid.
func (g Grid) Neighbors(id int) [4]int {
	row, col, ok := g.RowCol(id)
	if !ok {
		return [4]int{NoCell, NoCell, NoCell, NoCell}
	}
	return [4]int{
		Left:   g.cellAt(row, col-1),
		Right:  g.cellAt(row, col+1),
		Top:    g.cellAt(row+1, col),
		Bottom: g.cellAt(row-1, col),
	}
}

// EachAdjacency calls fn for every in-grid 4-neighbour pair, visiting columns
// in the outer loop and rows in the inner loop. Each undirected adjacency is
// reported once from each side.
func (g Grid) EachAdjacency(fn func(from, to int) error) error {
	for col := 0; col < g.cols; col++ {
		for row := 0; row < g.rows; row++ {
			cur := g.cellAt(row, col)
			for _, n := range g.Neighbors(cur) {
				if n == NoCell {
					continue
				}
				if err := fn(cur, n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
