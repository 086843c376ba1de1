// Command liverecorder is a minimal SDL2 host for the demo game: it drives
// the engine's Core through a normal RECORDING/PLAYBACK session while
// rendering the toy tile grid and player marker, grounded on the
// standard SDL2 window/event-loop pattern.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/veandco/go-sdl2/sdl"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/clock"
	"rewind-core-dx/internal/debug"
	"rewind-core-dx/internal/demogame"
	"rewind-core-dx/internal/engine"
	"rewind-core-dx/internal/region"
)

const (
	windowTitle  = "liverecorder"
	tileSize     = 24
	windowWidth  = demogame.GridWidth * tileSize
	windowHeight = demogame.GridHeight * tileSize
	tickRate     = 60
)

func main() {
	dataDir := flag.String("data-dir", "./liverecorder-data", "directory for recording/save blobs")
	period := flag.Int64("snapshot-period", 60, "diffs between full snapshots (K)")
	flag.Parse()

	if err := run(*dataDir, *period); err != nil {
		fmt.Fprintln(os.Stderr, "liverecorder:", err)
		os.Exit(1)
	}
}

func run(dataDir string, period int64) error {
	store, err := blobstore.NewFileStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening data dir: %w", err)
	}

	logger := debug.NewLogger(2000)
	defer logger.Shutdown()

	world := demogame.NewWorld()
	world.Reset(10)
	world.SetTile(5, 5, 0xFF)
	world.SetTile(10, 3, 0xFF)

	builder := region.NewBuilder(region.DefaultCapacity, logger)
	world.Register(builder)
	set := builder.Freeze()

	core := engine.New(store, set, engine.WithLogger(logger), engine.WithSnapshotPeriod(period))

	if name, err := core.RunStartupRecovery(); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	} else if name != "" {
		fmt.Println("recovered orphaned session into", name)
	}
	if err := core.RestoreSave(); err != nil {
		fmt.Println("restore warning:", err)
	}
	if err := core.StartRecording(); err != nil {
		return fmt.Errorf("starting recording: %w", err)
	}

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return fmt.Errorf("sdl init: %w", err)
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow(windowTitle, sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		windowWidth, windowHeight, sdl.WINDOW_SHOWN)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	defer window.Destroy()

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}
	defer renderer.Destroy()

	masterClock := clock.NewMasterClock(tickRate)
	quit := false
	fullscreen := false

	masterClock.Register("host-tick", tickRate, func(cycles uint64) error {
		final := false
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				quit = true
				final = true
			case *sdl.KeyboardEvent:
				if e.Type == sdl.KEYDOWN {
					handleKeyDown(e.Keysym.Sym, core, window, &fullscreen, &quit, &final)
				}
			}
		}

		world.SetInput(readMovementInput())
		if err := core.Step(final, world.Step); err != nil {
			return err
		}

		renderFrame(renderer, world, core)
		return nil
	})

	for !quit {
		if err := masterClock.Step(); err != nil {
			return err
		}
		sdl.Delay(1000 / tickRate)
	}
	return nil
}

func handleKeyDown(key sdl.Keycode, core *engine.Core, window *sdl.Window, fullscreen, quit, final *bool) {
	switch key {
	case sdl.K_ESCAPE:
		*quit = true
		*final = true
	case sdl.K_f:
		*fullscreen = !*fullscreen
		if *fullscreen {
			window.SetFullscreen(sdl.WINDOW_FULLSCREEN_DESKTOP)
		} else {
			window.SetFullscreen(0)
		}
	case sdl.K_p:
		togglePlayback(core)
	case sdl.K_SPACE:
		if cur := core.Cursor(); cur != nil {
			cur.TogglePause()
		}
	case sdl.K_EQUALS, sdl.K_KP_PLUS:
		if cur := core.Cursor(); cur != nil {
			_ = cur.Faster()
		}
	case sdl.K_MINUS, sdl.K_KP_MINUS:
		if cur := core.Cursor(); cur != nil {
			cur.Slower()
		}
	case sdl.K_n:
		if cur := core.Cursor(); cur != nil {
			cur.Normal()
		}
	case sdl.K_r:
		if cur := core.Cursor(); cur != nil {
			cur.Reverse()
		}
	case sdl.K_LEFTBRACKET:
		if cur := core.Cursor(); cur != nil {
			_ = cur.JumpHalfBack()
		}
	case sdl.K_RIGHTBRACKET:
		if cur := core.Cursor(); cur != nil {
			_ = cur.JumpHalfAhead()
		}
	}
}

func togglePlayback(core *engine.Core) {
	var err error
	switch core.State() {
	case engine.StateRecording:
		err = core.EnterPlayback()
	case engine.StatePlayback:
		err = core.StopPlayback()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "playback toggle warning:", err)
	}
}

func readMovementInput() byte {
	keys := sdl.GetKeyboardState()
	var bits byte
	if keys[sdl.SCANCODE_UP] != 0 {
		bits |= demogame.InputUp
	}
	if keys[sdl.SCANCODE_DOWN] != 0 {
		bits |= demogame.InputDown
	}
	if keys[sdl.SCANCODE_LEFT] != 0 {
		bits |= demogame.InputLeft
	}
	if keys[sdl.SCANCODE_RIGHT] != 0 {
		bits |= demogame.InputRight
	}
	return bits
}

func renderFrame(renderer *sdl.Renderer, world *demogame.World, core *engine.Core) {
	if core.State() == engine.StateRecording {
		renderer.SetDrawColor(20, 20, 30, 255)
	} else {
		renderer.SetDrawColor(30, 10, 30, 255)
	}
	renderer.Clear()

	for y := 0; y < demogame.GridHeight; y++ {
		for x := 0; x < demogame.GridWidth; x++ {
			rect := &sdl.Rect{X: int32(x * tileSize), Y: int32(y * tileSize), W: tileSize - 1, H: tileSize - 1}
			if world.Tile(x, y) == 0xFF {
				renderer.SetDrawColor(160, 40, 40, 255)
			} else {
				renderer.SetDrawColor(50, 50, 60, 255)
			}
			renderer.FillRect(rect)
		}
	}

	playerRect := &sdl.Rect{
		X: world.PlayerX()*tileSize + 2,
		Y: world.PlayerY()*tileSize + 2,
		W: tileSize - 4,
		H: tileSize - 4,
	}
	renderer.SetDrawColor(80, 200, 120, 255)
	renderer.FillRect(playerRect)

	renderer.Present()
}
