package parallel

import "image"

// Grid divides a width x height canvas into square tiles of TileSize pixels.
// Edge tiles are smaller when the canvas is not evenly divisible by the tile size.
type Grid struct {
	Width, Height int
	TileSize      int
	tilesX        int
	tilesY        int
}

// NewGrid returns the grid covering the canvas. A non-positive dimension yields an empty grid.
func NewGrid(width, height, tileSize int) Grid {
	if width <= 0 || height <= 0 || tileSize <= 0 {
		return Grid{TileSize: tileSize}
	}
	return Grid{
		Width:    width,
		Height:   height,
		TileSize: tileSize,
		tilesX:   (width + tileSize - 1) / tileSize,
		tilesY:   (height + tileSize - 1) / tileSize,
	}
}

// TilesX returns the number of tile columns.
func (g Grid) TilesX() int { return g.tilesX }

// TilesY returns the number of tile rows.
func (g Grid) TilesY() int { return g.tilesY }

// Len returns the number of tiles.
func (g Grid) Len() int { return g.tilesX * g.tilesY }

// Contains reports whether (tx,ty) is a valid tile coordinate.
func (g Grid) Contains(tx, ty int) bool {
	return tx >= 0 && ty >= 0 && tx < g.tilesX && ty < g.tilesY
}

// Index returns the row-major index of the tile at (tx,ty).
func (g Grid) Index(tx, ty int) int { return ty*g.tilesX + tx }

// Coords returns the tile coordinates of the row-major index idx.
func (g Grid) Coords(idx int) (tx, ty int) { return idx % g.tilesX, idx / g.tilesX }

// Rect returns the pixel rectangle of the tile at (tx,ty) clipped to the canvas.
func (g Grid) Rect(tx, ty int) image.Rectangle {
	r := image.Rect(tx*g.TileSize, ty*g.TileSize, (tx+1)*g.TileSize, (ty+1)*g.TileSize)
	return r.Intersect(image.Rect(0, 0, g.Width, g.Height))
}

// Chunks splits the tile indices [0,Len) into at most n contiguous ranges of
// similar size and calls fn for each range. Used to build one job per range.
func (g Grid) Chunks(n int, fn func(start, end int)) {
	total := g.Len()
	if total == 0 {
		return
	}
	n = max(1, min(n, total))
	per := (total + n - 1) / n
	for start := 0; start < total; start += per {
		fn(start, min(start+per, total))
	}
}
