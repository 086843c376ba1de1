// Package demogame is a toy mutable-state game used to exercise the
// region registry and the recorder/playback engine end to end, the way a
// stand-in cpu/ppu/apu exists only to give an emulator core something to
// step. It has no rules worth calling a game: a player moves on a small
// tile grid and takes occasional damage, nothing more.
package demogame

import (
	"encoding/binary"

	"rewind-core-dx/internal/region"
)

// GridWidth and GridHeight size the toy tile grid.
const (
	GridWidth  = 16
	GridHeight = 16
)

// World holds every byte of mutable state, laid out as the fixed-size
// byte spans the region registry expects: PlayerPos (2x int32 LE),
// PlayerHP (1x uint16 LE), TileGrid (GridWidth*GridHeight bytes), and
// InputLatch (1 byte). Each field aliases the caller-owned memory the
// core reads and writes directly; there is no separate "model" copied in
// and out.
type World struct {
	PlayerPos  []byte
	PlayerHP   []byte
	TileGrid   []byte
	InputLatch []byte
}

// NewWorld allocates a fresh, zeroed World.
func NewWorld() *World {
	return &World{
		PlayerPos:  make([]byte, 8),
		PlayerHP:   make([]byte, 2),
		TileGrid:   make([]byte, GridWidth*GridHeight),
		InputLatch: make([]byte, 1),
	}
}

// Register hands every field to b in a fixed, stable order. Call this
// once during the init phase, before Freeze.
func (w *World) Register(b *region.Builder) {
	b.Register(w.PlayerPos, "demogame.PlayerPos")
	b.Register(w.PlayerHP, "demogame.PlayerHP")
	b.Register(w.TileGrid, "demogame.TileGrid")
	b.Register(w.InputLatch, "demogame.InputLatch")
}

// Reset zeroes every field and sets full HP.
func (w *World) Reset(startHP uint16) {
	for i := range w.PlayerPos {
		w.PlayerPos[i] = 0
	}
	binary.LittleEndian.PutUint16(w.PlayerHP, startHP)
	for i := range w.TileGrid {
		w.TileGrid[i] = 0
	}
	w.InputLatch[0] = 0
}

// PlayerX and PlayerY read the player's position.
func (w *World) PlayerX() int32 { return int32(binary.LittleEndian.Uint32(w.PlayerPos[0:4])) }
func (w *World) PlayerY() int32 { return int32(binary.LittleEndian.Uint32(w.PlayerPos[4:8])) }

// SetPlayerPos writes the player's position.
func (w *World) SetPlayerPos(x, y int32) {
	binary.LittleEndian.PutUint32(w.PlayerPos[0:4], uint32(x))
	binary.LittleEndian.PutUint32(w.PlayerPos[4:8], uint32(y))
}

// HP reads the player's current hit points.
func (w *World) HP() uint16 { return binary.LittleEndian.Uint16(w.PlayerHP) }

// SetHP writes the player's current hit points.
func (w *World) SetHP(hp uint16) { binary.LittleEndian.PutUint16(w.PlayerHP, hp) }

// Tile reads the tile at (x, y).
func (w *World) Tile(x, y int) byte { return w.TileGrid[y*GridWidth+x] }

// SetTile writes the tile at (x, y).
func (w *World) SetTile(x, y int, v byte) { w.TileGrid[y*GridWidth+x] = v }

// Input directions, bit-flags packed into InputLatch.
const (
	InputUp    = 1 << 0
	InputDown  = 1 << 1
	InputLeft  = 1 << 2
	InputRight = 1 << 3
)

// SetInput overwrites the latched input bits for the tick about to run.
func (w *World) SetInput(bits byte) { w.InputLatch[0] = bits }

// Step advances the toy simulation by one tick: move the player according
// to the latched input, clamped to the grid, and apply damage when
// standing on a hazard tile (tile value 0xFF).
func (w *World) Step() {
	x, y := w.PlayerX(), w.PlayerY()
	bits := w.InputLatch[0]
	if bits&InputUp != 0 && y > 0 {
		y--
	}
	if bits&InputDown != 0 && y < GridHeight-1 {
		y++
	}
	if bits&InputLeft != 0 && x > 0 {
		x--
	}
	if bits&InputRight != 0 && x < GridWidth-1 {
		x++
	}
	w.SetPlayerPos(x, y)

	if w.Tile(int(x), int(y)) == 0xFF {
		hp := w.HP()
		if hp > 0 {
			w.SetHP(hp - 1)
		}
	}
}
