package worldline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	We "github.com/maroda/worldline/engine"
	Wo "github.com/maroda/worldline/obvy"
	Wt "github.com/maroda/worldline/types"
)

const (
	screenGutter = 2 // header rows above the plot
	screenFooter = 2 // footer rows below the plot
)

// View renders batches from the Coordinator.
// Screen is nil when running headless; the batch is still kept for HTTP and websockets.
type View struct {
	MU          sync.Mutex
	Coord       *We.Coordinator
	Screen      tcell.Screen      // the screen itself
	Stats       *Wo.StatsInternal // Internal status for prometheus
	Supervisor  *FrameSupervisor  // Ticks the coordinator
	server      *http.Server      // API, metrics, websocket
	batch       *We.Batch         // last batch presented
	unavailable error             // set when the last pass failed
	streamCycle int               // next stream toggled by 's'
}

// Present implements the Coordinator's Renderer
func (v *View) Present(b We.Batch) {
	v.MU.Lock()
	v.batch = &b
	v.unavailable = nil
	v.MU.Unlock()

	if v.Screen != nil {
		v.UpdateScreen()
	}
}

// SceneUnavailable implements the Coordinator's Renderer
func (v *View) SceneUnavailable(err error) {
	v.MU.Lock()
	v.unavailable = err
	v.MU.Unlock()

	if v.Screen != nil {
		v.UpdateScreen()
	}
}

// Latest is the last batch presented, nil before the first
func (v *View) Latest() *We.Batch {
	v.MU.Lock()
	defer v.MU.Unlock()
	return v.batch
}

// Unavailable is the error from the last failed pass, nil after a success
func (v *View) Unavailable() error {
	v.MU.Lock()
	defer v.MU.Unlock()
	return v.unavailable
}

// PlotBounds is the screen rectangle used for the side projection
func (v *View) PlotBounds() (x0, y0, x1, y1 int) {
	width, height := v.GetScreenSize()
	return 1, screenGutter, width - 2, height - screenFooter - 1
}

// MaxRadius is the widest world X any primitive in the batch reaches
func MaxRadius(b *We.Batch) float64 {
	r := 1.0
	for _, p := range b.Primitives {
		for i := 0; i+2 < len(p.Points); i += 3 {
			r = math.Max(r, math.Abs(p.Points[i]))
		}
	}
	return r
}

// ToScreen maps a world point (x, height) into the plot rectangle.
// Later heights are drawn higher; ok is false outside the window.
func ToScreen(x, h float64, b *We.Batch, maxR float64, x0, y0, x1, y1 int) (col, row int, ok bool) {
	span := b.WindowEnd - b.WindowStart
	if span <= 0 || maxR <= 0 || x1 <= x0 || y1 <= y0 {
		return 0, 0, false
	}
	if h < b.WindowStart || h > b.WindowEnd {
		return 0, 0, false
	}
	fx := (x + maxR) / (2 * maxR)
	fy := (h - b.WindowStart) / span
	col = x0 + int(math.Round(fx*float64(x1-x0)))
	row = y1 - int(math.Round(fy*float64(y1-y0)))
	return col, row, true
}

// HexStyle turns a "#rrggbb" hint into a style, default when empty or invalid
func HexStyle(hex string, opacity float64) tcell.Style {
	style := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorLightSteelBlue)
	if hex != "" {
		if c := tcell.GetColor(hex); c != tcell.ColorDefault {
			style = style.Foreground(c)
		}
	}
	if opacity < 1 {
		style = style.Dim(true)
	}
	return style
}

// DrawPrimitive plots one curve or marker
func (v *View) DrawPrimitive(p Wt.RenderPrimitive, b *We.Batch, maxR float64) {
	x0, y0, x1, y1 := v.PlotBounds()
	style := HexStyle(p.Color, p.Opacity)

	symbol := '·'
	switch {
	case p.Kind == Wt.Marker:
		symbol = '●'
	case p.SourceID == "star":
		symbol = '│'
	}

	for i := 0; i+2 < len(p.Points); i += 3 {
		col, row, ok := ToScreen(p.Points[i], p.Points[i+1], b, maxR, x0, y0, x1, y1)
		if !ok {
			continue
		}
		v.Screen.SetContent(col, row, symbol, nil, style)
	}

	// the star axis is two points, fill between them
	if p.SourceID == "star" && len(p.Points) == 6 {
		col, top, okTop := ToScreen(0, b.WindowEnd, b, maxR, x0, y0, x1, y1)
		_, bottom, okBottom := ToScreen(0, b.WindowStart, b, maxR, x0, y0, x1, y1)
		if okTop && okBottom {
			for row := top; row <= bottom; row++ {
				v.Screen.SetContent(col, row, symbol, nil, style)
			}
		}
	}
}

// DrawText displays the text string at the given (x1, y1) with box size (x2, y2)
func (v *View) DrawText(x1, y1, x2, y2 int, text string) {
	row := y1
	col := x1
	style := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorLightSteelBlue)
	for _, r := range text {
		v.Screen.SetContent(col, row, r, nil, style)
		col++
		if col >= x2 {
			row++
			col = x1
		}
		if row > y2 {
			break
		}
	}
}

// DrawViewBorder displays the outline of the View
func (v *View) DrawViewBorder(width, height int) {
	hvStyle := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorSlateGray)
	v.Screen.SetContent(0, 0, tcell.RuneULCorner, nil, hvStyle)
	for i := 1; i < width; i++ {
		v.Screen.SetContent(i, 0, tcell.RuneHLine, nil, hvStyle)
		v.Screen.SetContent(i, height, tcell.RuneHLine, nil, hvStyle)
	}
	v.Screen.SetContent(width, 0, tcell.RuneURCorner, nil, hvStyle)
	for i := 1; i < height; i++ {
		v.Screen.SetContent(0, i, tcell.RuneVLine, nil, hvStyle)
		v.Screen.SetContent(width, i, tcell.RuneVLine, nil, hvStyle)
	}
	v.Screen.SetContent(0, height, tcell.RuneLLCorner, nil, hvStyle)
	v.Screen.SetContent(width, height, tcell.RuneLRCorner, nil, hvStyle)
}

// Header is the status line for a batch
func Header(b *We.Batch) string {
	return fmt.Sprintf("%s (zoom %d) | %s | focus %s | %d primitives | %d dropped",
		b.ZoomName, b.ZoomLevel, b.Cursor.Format("2006-01-02 15:04 MST"), b.Focus, len(b.Primitives), b.Dropped)
}

// DrawWorldline draws the whole frame from the last batch
func (v *View) DrawWorldline() {
	width, height := v.GetScreenSize()

	v.MU.Lock()
	b := v.batch
	unavailable := v.unavailable
	v.MU.Unlock()

	v.DrawViewBorder(width-1, height-1)

	switch {
	case unavailable != nil:
		v.DrawText(2, height/2, width-2, height/2+2, "scene unavailable: "+unavailable.Error())
	case b == nil:
		v.DrawText(2, height/2, width-2, height/2, "waiting for first frame")
	default:
		v.DrawText(2, 1, width-2, 1, Header(b))
		maxR := MaxRadius(b)
		for _, p := range b.Primitives {
			v.DrawPrimitive(p, b, maxR)
		}
	}

	v.DrawText(2, height-2, width-2, height-2, "1-9 zoom | ←/→ step | t now | s streams | ESC quit")
	v.DrawText(width-12, height-1, width, height-1, "WORLDLINE")
}

// GetScreenSize provides the terminal size for drawing
func (v *View) GetScreenSize() (int, int) {
	return v.Screen.Size()
}

// ResizeScreen redraws after terminal changes
func (v *View) ResizeScreen() {
	v.Screen.Sync()
	v.UpdateScreen()
}

func (v *View) UpdateScreen() {
	v.Screen.Clear()
	v.DrawWorldline()
	v.Screen.Show()
}

// HandleKey applies one key press to the coordinator, returns false on quit
func (v *View) HandleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyLeft:
		v.logReject("step", v.Coord.Step(-1))
		return true
	case tcell.KeyRight:
		v.logReject("step", v.Coord.Step(1))
		return true
	}

	r := ev.Rune()
	switch {
	case r >= '1' && r <= '9':
		v.logReject("zoom", v.Coord.SetZoomLevel(int(r-'0')))
	case r == 't':
		v.logReject("cursor", v.Coord.SetTimeCursor(v.Coord.Now()))
	case r == 's':
		v.ToggleNextStream()
	case r == 'q':
		return false
	}
	return true
}

// ToggleNextStream flips visibility of streams in turn
func (v *View) ToggleNextStream() {
	streams := v.Coord.Session().Streams
	if len(streams) == 0 {
		return
	}
	v.MU.Lock()
	s := streams[v.streamCycle%len(streams)]
	v.streamCycle++
	v.MU.Unlock()

	v.logReject("stream", v.Coord.SetStreamVisible(s.ID, !s.Visible))
}

func (v *View) logReject(what string, err error) {
	if err != nil {
		slog.Warn("Input rejected", slog.String("input", what), slog.Any("Error", err))
	}
}

// Running Loop to handle events
func (v *View) handleKeyBoardEvent() {
	for {
		ev := v.Screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return // screen finalized
		case *tcell.EventResize:
			v.ResizeScreen()
		case *tcell.EventKey:
			if !v.HandleKey(ev) {
				return
			}
		}
	}
}

// RespWriter is a wrapper with StatsMiddleware, used for Prometheus
type RespWriter struct {
	http.ResponseWriter
	Status int
}

// WriteHeader is a helper for StatsMiddleware, used for Prometheus
func (w *RespWriter) WriteHeader(status int) {
	w.Status = status
	w.ResponseWriter.WriteHeader(status)
}

func (v *View) StatsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &RespWriter{
			ResponseWriter: w,
			Status:         200,
		}
		next.ServeHTTP(wrapped, r)
		v.Stats.RecWWW(strconv.Itoa(wrapped.Status), r.Method)
	})
}

// NewView wires a coordinator to this view. The screen is attached separately.
func NewView(scene *We.Scene, stats *Wo.StatsInternal) (*View, error) {
	if stats == nil {
		stats = Wo.NewStatsInternal()
	}
	view := &View{
		Stats: stats,
	}

	coord, err := We.NewCoordinator(scene, view)
	if err != nil {
		slog.Error("Could not create coordinator", slog.Any("Error", err))
		return nil, err
	}
	coord.Stats = stats
	view.Coord = coord

	return view, nil
}

// AttachScreen initializes a tcell screen for drawing
func (v *View) AttachScreen(screen tcell.Screen) error {
	if err := screen.Init(); err != nil {
		slog.Error("Could not initialize screen", slog.Any("Error", err))
		return err
	}
	defStyle := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorLightSteelBlue)
	screen.SetStyle(defStyle)

	v.MU.Lock()
	v.Screen = screen
	v.MU.Unlock()

	v.UpdateScreen()
	return nil
}

// Options for the run loops
type Options struct {
	Addr      string
	FPS       int
	Zoom      int
	Watch     string // scene file to watch, empty disables
	Store     string // event store plugin, empty disables
	StorePath string
}

// StartWorldlineView is called by the CLI to run the terminal view,
// along with the HTTP API and /metrics endpoint.
func StartWorldlineView(ctx context.Context, scene *We.Scene, opts Options) error {
	view, err := NewView(scene, nil)
	if err != nil {
		return err
	}
	if err := view.Coord.SetZoomLevel(opts.Zoom); err != nil {
		return err
	}
	if opts.Store != "" {
		store, err := InitEventStore(view, opts.Store, opts.StorePath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		slog.Error("Could not get new screen", slog.Any("Error", err))
		return err
	}
	if err := view.AttachScreen(screen); err != nil {
		return err
	}
	defer screen.Fini()

	stop, err := view.startBackground(ctx, opts)
	if err != nil {
		return err
	}
	defer stop()

	view.handleKeyBoardEvent()
	return nil
}

// StartWebNoTUI serves the API and websocket feed until ctx is done
func StartWebNoTUI(ctx context.Context, scene *We.Scene, opts Options) error {
	view, err := NewView(scene, nil)
	if err != nil {
		return err
	}
	if err := view.Coord.SetZoomLevel(opts.Zoom); err != nil {
		return err
	}
	if opts.Store != "" {
		store, err := InitEventStore(view, opts.Store, opts.StorePath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	stop, err := view.startBackground(ctx, opts)
	if err != nil {
		return err
	}
	defer stop()

	<-ctx.Done()
	return nil
}

// startBackground runs the frame supervisor, the HTTP server, and the optional scene watcher
func (v *View) startBackground(ctx context.Context, opts Options) (func(), error) {
	var watcher *SceneWatcher
	if opts.Watch != "" {
		w, err := NewSceneWatcher(opts.Watch, v.ReloadScene)
		if err != nil {
			return nil, err
		}
		if err := w.Start(); err != nil {
			return nil, err
		}
		watcher = w
	}

	sup := v.NewFrameSupervisor(opts.FPS)
	sup.Start(ctx)

	v.server = &http.Server{
		Addr:    opts.Addr,
		Handler: v.Handler(),
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in HTTP server", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			}
		}()
		slog.Info("Starting worldline API endpoint...", slog.String("Port", opts.Addr))
		if err := v.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Could not start API endpoint", slog.Any("Error", err))
		}
	}()

	return func() {
		sup.Stop()
		if watcher != nil {
			watcher.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := v.server.Shutdown(shutdownCtx); err != nil {
			slog.Error("API shutdown failed", slog.Any("Error", err))
		}
	}, nil
}
