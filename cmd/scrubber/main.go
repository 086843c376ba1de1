// Command scrubber is a Fyne-based offline viewer for finalized recordings:
// open a playback blob, scrub it forward/backward, jump between keyframes,
// and watch the toy game's state change, using the same Fyne
// window/toolbar layout as a dev-tool host.
package main

import (
	"fmt"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	flag "github.com/spf13/pflag"

	"rewind-core-dx/internal/blobstore"
	"rewind-core-dx/internal/debug"
	"rewind-core-dx/internal/demogame"
	"rewind-core-dx/internal/playback"
	"rewind-core-dx/internal/region"
)

const (
	defaultWindowWidth  = 520
	defaultWindowHeight = 420
)

func main() {
	dataDir := flag.String("data-dir", "./liverecorder-data", "directory holding the recording to scrub")
	blobName := flag.String("blob", "recording.bin", "blob name within data-dir to open")
	flag.Parse()

	if err := run(*dataDir, *blobName); err != nil {
		fmt.Fprintln(os.Stderr, "scrubber:", err)
		os.Exit(1)
	}
}

type scrubberState struct {
	cur    *playback.Cursor
	world  *demogame.World
	status *widget.Label
	grid   *widget.TextGrid
}

func run(dataDir, blobName string) error {
	store, err := blobstore.NewFileStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening data dir: %w", err)
	}

	logger := debug.NewLogger(2000)
	defer logger.Shutdown()

	world := demogame.NewWorld()
	builder := region.NewBuilder(region.DefaultCapacity, logger)
	world.Register(builder)
	set := builder.Freeze()

	cur, err := playback.Open(store, blobName, set, logger)
	if err != nil {
		return fmt.Errorf("opening %q: %w", blobName, err)
	}
	defer cur.Close()

	a := app.New()
	w := a.NewWindow("scrubber — " + blobName)
	w.Resize(fyne.NewSize(defaultWindowWidth, defaultWindowHeight))

	s := &scrubberState{
		cur:    cur,
		world:  world,
		status: widget.NewLabel(""),
		grid:   widget.NewTextGrid(),
	}
	s.refresh()

	toolbar := buildToolbar(s)
	content := container.NewBorder(toolbar, s.status, nil, nil, container.NewScroll(s.grid))
	w.SetContent(content)
	w.ShowAndRun()
	return nil
}

func buildToolbar(s *scrubberState) *widget.Toolbar {
	return widget.NewToolbar(
		widget.NewToolbarAction(theme.MediaSkipPreviousIcon(), func() {
			runAndRefresh(s, func() error { return s.cur.JumpToFullSnapshot(0) })
		}),
		widget.NewToolbarAction(theme.MediaFastRewindIcon(), func() {
			runAndRefresh(s, s.cur.JumpHalfBack)
		}),
		widget.NewToolbarAction(theme.MediaReplayIcon(), func() {
			runAndRefresh(s, s.cur.BackwardStep)
		}),
		widget.NewToolbarAction(theme.MediaPauseIcon(), func() {
			s.cur.TogglePause()
			s.refresh()
		}),
		widget.NewToolbarAction(theme.MediaPlayIcon(), func() {
			runAndRefresh(s, s.cur.ForwardStep)
		}),
		widget.NewToolbarAction(theme.MediaFastForwardIcon(), func() {
			runAndRefresh(s, s.cur.JumpHalfAhead)
		}),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ContentUndoIcon(), func() {
			s.cur.Reverse()
			s.refresh()
		}),
	)
}

func runAndRefresh(s *scrubberState, fn func() error) {
	if err := fn(); err != nil {
		s.status.SetText("error: " + err.Error())
		return
	}
	s.refresh()
}

func (s *scrubberState) refresh() {
	s.grid.SetText(renderGrid(s.world))
	s.status.SetText(fmt.Sprintf(
		"snapshot %d/ pos=(%d,%d) hp=%d dir=%+d speed=%+d paused=%v running=%v",
		s.cur.FullSnapshotLastPlayed(), s.world.PlayerX(), s.world.PlayerY(), s.world.HP(),
		s.cur.Direction(), s.cur.Speed(), s.cur.Paused(), s.cur.Running(),
	))
}

func renderGrid(world *demogame.World) string {
	out := make([]byte, 0, demogame.GridHeight*(demogame.GridWidth+1))
	for y := 0; y < demogame.GridHeight; y++ {
		for x := 0; x < demogame.GridWidth; x++ {
			switch {
			case int32(x) == world.PlayerX() && int32(y) == world.PlayerY():
				out = append(out, '@')
			case world.Tile(x, y) == 0xFF:
				out = append(out, '#')
			default:
				out = append(out, '.')
			}
		}
		out = append(out, '\n')
	}
	return string(out)
}
