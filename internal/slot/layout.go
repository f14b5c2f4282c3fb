package slot

import (
	"fmt"
	"strconv"
	"strings"
)

// Layout is a square grid "NxN".
type Layout string

const (
	Layout1x1 Layout = "1x1"
	Layout2x2 Layout = "2x2"
	Layout3x3 Layout = "3x3"
	Layout4x4 Layout = "4x4"
	Layout5x5 Layout = "5x5"
	Layout6x6 Layout = "6x6"

	DefaultLayout = Layout4x4
)

var Layouts = []Layout{Layout1x1, Layout2x2, Layout3x3, Layout4x4, Layout5x5, Layout6x6}

// ParseLayout accepts one of Layouts.
func ParseLayout(s string) (Layout, error) {
	for _, l := range Layouts {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown layout %q", s)
}

// Dims returns rows and columns.
func (l Layout) Dims() (rows, cols int) {
	r, c, ok := strings.Cut(string(l), "x")
	if !ok {
		return 0, 0
	}
	rows, _ = strconv.Atoi(r)
	cols, _ = strconv.Atoi(c)
	return rows, cols
}

// Size is the number of slots in the grid.
func (l Layout) Size() int {
	r, c := l.Dims()
	return r * c
}

// ID returns the slot ID for grid index i: "tile-00", "tile-01", ...
func ID(i int) string {
	return fmt.Sprintf("tile-%02d", i)
}

// Index parses a slot ID back to its grid index.
func Index(id string) (int, bool) {
	s, ok := strings.CutPrefix(id, "tile-")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
