package worldline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	We "github.com/maroda/worldline/engine"
)

const DefaultFPS = 30

type FrameSupervisor struct {
	View     *View
	Interval time.Duration
	Ticker   *time.Ticker
	StopChan chan struct{}
	WG       sync.WaitGroup
}

// NewFrameSupervisor is a wrapper around the View that drives the frame tick
// They are strongly coupled, one knows about the other
func (v *View) NewFrameSupervisor(fps int) *FrameSupervisor {
	if fps < 1 {
		fps = DefaultFPS
	}
	fs := &FrameSupervisor{
		View:     v,
		Interval: time.Second / time.Duration(fps),
	}
	v.Supervisor = fs
	return fs
}

// ReloadScene pushes a freshly loaded scene into the coordinator,
// the next frame picks it up
func (v *View) ReloadScene(scene *We.Scene) {
	if err := v.Coord.Reload(scene); err != nil {
		slog.Error("Scene reload rejected", slog.Any("Error", err))
	}
}

// Frame runs one tick of the coordinator
func (f *FrameSupervisor) Frame(ctx context.Context) {
	f.View.Stats.RecFrame()
	if _, err := f.View.Coord.Tick(ctx); err != nil {
		slog.Debug("Frame produced no batch", slog.Any("Error", err))
	}
}

// Start the FrameSupervisor
func (f *FrameSupervisor) Start(ctx context.Context) {
	f.StopChan = make(chan struct{})
	f.Ticker = time.NewTicker(f.Interval)

	f.WG.Add(1)
	go func() {
		defer f.WG.Done()
		defer f.Ticker.Stop()

		for {
			select {
			case <-f.Ticker.C:
				f.Frame(ctx)
			case <-f.StopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop the FrameSupervisor
func (f *FrameSupervisor) Stop() {
	if f.StopChan != nil {
		close(f.StopChan)
		f.WG.Wait()
		f.StopChan = nil
	}
}

// Restart the FrameSupervisor
func (f *FrameSupervisor) Restart(ctx context.Context) {
	f.Stop()
	f.Start(ctx)
}
