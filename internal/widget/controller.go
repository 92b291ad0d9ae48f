// Package widget is the map block itself: the controller a host mounts, the
// map canvas it composes, the marker inputs and the empty state.
package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapblock/internal/block"
	"github.com/joeblew999/plat-mapblock/internal/mapsvc"
)

// ErrNotConfigured is returned for canvas operations while no API key is set.
var ErrNotConfigured = errors.New("block has no api key")

// Host is the settings persistence of the platform the block is mounted in.
// Write merges the patch into the stored settings.
type Host interface {
	Read(ctx context.Context) (block.Settings, error)
	Write(ctx context.Context, p block.Patch) error
}

// PrintHook tells the host when the block can be printed.
type PrintHook interface {
	SetReady(ready bool)
}

// RetryPolicy bounds how often a failed write is retried.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry tries three times, waiting 50ms then 100ms.
var DefaultRetry = RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}

// APISession is the page session used by callers without a page, such as
// the REST API.
const APISession = "api"

// DefaultSessionTTL is how long an unused page session keeps its canvas.
const DefaultSessionTTL = 30 * time.Minute

// Config wires a controller.
type Config struct {
	Loader mapsvc.Loader
	Print  PrintHook
	Delay  time.Duration
	Size   mapsvc.Size
	Retry  RetryPolicy
	// SessionTTL drops canvases of pages that stopped rendering.
	SessionTTL time.Duration
	Logger     zerolog.Logger
}

// View is everything a renderer needs for one frame of the block.
type View struct {
	Editing   bool        `json:"editing"`
	Empty     *EmptyState `json:"empty,omitempty" doc:"Set when no API key is configured"`
	Canvas    *CanvasView `json:"canvas,omitempty"`
	Unsaved   bool        `json:"unsaved" doc:"A change could not be persisted yet"`
	SaveError string      `json:"saveError,omitempty"`
}

// session is one page showing the block. Each page has its own canvas, so
// its mode, live viewport, info window and inputs are its own.
type session struct {
	canvas   *Canvas
	editing  bool
	loading  bool
	loadDone chan struct{}
	used     time.Time
}

// Controller is the root of a mounted block. It reads the settings, shows
// the empty state or a canvas per page session, and persists every change
// the canvases make.
type Controller struct {
	host   Host
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	mu       sync.Mutex
	settings block.Settings
	sessions map[string]*session
	printed  bool
	pending  block.Patch
	inflight int
	unsaved  bool
	saveErr  error

	// writeMu keeps host writes in submission order.
	writeMu sync.Mutex
}

// NewController creates a controller for host.
func NewController(host Host, cfg Config) *Controller {
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = DefaultRetry
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		host:     host,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
		settings: block.Defaults(),
		sessions: map[string]*session{},
	}
}

// Render reads the settings and produces the view of one page session in
// the given editor state. Without an API key no map service is touched.
// Otherwise the session's map loads in the background and later renders
// pick it up. Mode changes only affect the session's own canvas.
func (c *Controller) Render(ctx context.Context, sid string, editing bool) (View, error) {
	c.mu.Lock()
	fresh := c.inflight == 0 && !c.unsaved
	c.mu.Unlock()

	if fresh {
		s, err := c.host.Read(ctx)
		if err != nil {
			return View{}, fmt.Errorf("reading settings: %w", err)
		}
		c.mu.Lock()
		// A change staged during the read is newer than s.
		if c.inflight == 0 && !c.unsaved {
			c.settings = s
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	stale := c.pruneLocked(sid)
	ss := c.sessionLocked(sid)
	ss.editing = editing
	s := c.settings
	cv := ss.canvas
	view := View{Editing: editing, Unsaved: c.unsaved}
	if c.saveErr != nil {
		view.SaveError = c.saveErr.Error()
	}
	c.mu.Unlock()

	for _, old := range stale {
		old.Close()
	}

	if !s.Configured() {
		c.dropCanvas(sid, cv)
		empty := DefaultEmptyState
		view.Empty = &empty
		return view, nil
	}

	if cv != nil && cv.Settings().APIKey != s.APIKey {
		c.dropCanvas(sid, cv)
		cv = nil
	}
	if cv == nil {
		cv = c.mountCanvas(sid, s, editing)
	} else {
		cv.Update(s)
		cv.SetMode(ModeOf(editing))
	}
	c.startLoad(sid, cv)

	v := cv.View()
	view.Canvas = &v
	return view, nil
}

// sessionLocked returns the session sid, creating it. c.mu must be held.
func (c *Controller) sessionLocked(sid string) *session {
	ss, ok := c.sessions[sid]
	if !ok {
		done := make(chan struct{})
		close(done)
		ss = &session{loadDone: done}
		c.sessions[sid] = ss
	}
	ss.used = c.now()
	return ss
}

// pruneLocked forgets sessions other than keep that were not rendered
// within the TTL and returns their canvases for closing. c.mu must be held.
func (c *Controller) pruneLocked(keep string) []*Canvas {
	var stale []*Canvas
	cutoff := c.now().Add(-c.cfg.SessionTTL)
	for sid, ss := range c.sessions {
		if sid == keep || ss.used.After(cutoff) {
			continue
		}
		delete(c.sessions, sid)
		if ss.canvas != nil {
			stale = append(stale, ss.canvas)
		}
	}
	return stale
}

// Release closes the canvas of a page that went away. Pending input edits
// are flushed; the live viewport is not persisted.
func (c *Controller) Release(sid string) {
	c.mu.Lock()
	ss, ok := c.sessions[sid]
	delete(c.sessions, sid)
	c.mu.Unlock()
	if ok && ss.canvas != nil {
		ss.canvas.Close()
	}
}

// Sessions returns the number of page sessions with state.
func (c *Controller) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// mountCanvas creates the session's canvas for s, unless another render
// won the race.
func (c *Controller) mountCanvas(sid string, s block.Settings, editing bool) *Canvas {
	cv := NewCanvas(CanvasConfig{
		Loader:   c.cfg.Loader,
		Delay:    c.cfg.Delay,
		Size:     c.cfg.Size,
		OnChange: c.onCanvasChange,
		Logger:   c.cfg.Logger.With().Str("session", sid).Logger(),
	}, s, ModeOf(editing))

	c.mu.Lock()
	defer c.mu.Unlock()
	ss := c.sessionLocked(sid)
	if ss.canvas != nil {
		return ss.canvas
	}
	ss.canvas = cv
	return cv
}

func (c *Controller) dropCanvas(sid string, cv *Canvas) {
	if cv == nil {
		return
	}
	c.mu.Lock()
	if ss, ok := c.sessions[sid]; ok && ss.canvas == cv {
		ss.canvas = nil
	}
	c.mu.Unlock()
	cv.Close()
}

// startLoad loads cv in the background unless it is loaded or loading.
// A failed load is retried by the next render. The print hook fires after
// the first successful load of any session.
func (c *Controller) startLoad(sid string, cv *Canvas) {
	if cv.Loaded() {
		return
	}
	c.mu.Lock()
	ss := c.sessionLocked(sid)
	if ss.loading {
		c.mu.Unlock()
		return
	}
	ss.loading = true
	done := make(chan struct{})
	ss.loadDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := cv.Load(c.ctx)

		c.mu.Lock()
		ss.loading = false
		signal := err == nil && !c.printed
		if signal {
			c.printed = true
		}
		c.mu.Unlock()

		if err != nil {
			c.cfg.Logger.Warn().Err(err).Str("session", sid).Msg("Map load failed")
			return
		}
		if signal && c.cfg.Print != nil {
			c.cfg.Print.SetReady(true)
		}
	}()
}

// WaitLoaded blocks until the load started by the session's last render
// finished.
func (c *Controller) WaitLoaded(ctx context.Context, sid string) error {
	c.mu.Lock()
	ss, ok := c.sessions[sid]
	var done chan struct{}
	if ok {
		done = ss.loadDone
	}
	c.mu.Unlock()
	if !ok {
		return ErrNotConfigured
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	cv, err := c.Canvas(sid)
	if err != nil {
		return err
	}
	if !cv.Loaded() {
		return ErrNotLoaded
	}
	return nil
}

// Canvas returns the canvas of a session.
func (c *Controller) Canvas(sid string) (*Canvas, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ss, ok := c.sessions[sid]
	if !ok || ss.canvas == nil {
		return nil, ErrNotConfigured
	}
	return ss.canvas, nil
}

// canvases returns all mounted canvases.
func (c *Controller) canvases() []*Canvas {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Canvas, 0, len(c.sessions))
	for _, ss := range c.sessions {
		if ss.canvas != nil {
			out = append(out, ss.canvas)
		}
	}
	return out
}

// Settings returns the controller's current settings, including changes
// not yet persisted.
func (c *Controller) Settings() block.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Editing reports the editor state of the session's last render.
func (c *Controller) Editing(sid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ss, ok := c.sessions[sid]
	return ok && ss.editing
}

// Apply merges an externally made change (a settings form, an API call)
// and persists it. Every canvas sees the change immediately.
func (c *Controller) Apply(ctx context.Context, p block.Patch) error {
	if p.IsEmpty() {
		return nil
	}
	s := c.stage(p)

	for _, cv := range c.canvases() {
		if cv.Settings().APIKey == s.APIKey {
			cv.Update(s)
		}
	}
	return c.persist(ctx)
}

func (c *Controller) onCanvasChange(p block.Patch) {
	c.stage(p)
	if err := c.persist(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.cfg.Logger.Debug().Err(err).Msg("Canvas change kept unsaved")
	}
}

// stage applies p to the local settings and queues it for the host.
func (c *Controller) stage(p block.Patch) block.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = c.settings.Apply(p)
	c.pending = c.pending.Merge(p)
	c.inflight++
	return c.settings
}

// persist writes everything queued so far. A write that keeps failing
// after the retries stays queued and marks the block unsaved; the next
// successful write carries it along.
func (c *Controller) persist(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	p := c.pending
	c.pending = block.Patch{}
	c.mu.Unlock()

	var err error
	if !p.IsEmpty() {
		err = c.writeWithRetry(ctx, p)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if err != nil {
		c.pending = p.Merge(c.pending)
		c.unsaved = true
		c.saveErr = err
		c.cfg.Logger.Error().Err(err).Msg("Settings not saved")
		return fmt.Errorf("saving settings: %w", err)
	}
	if c.pending.IsEmpty() {
		c.unsaved = false
		c.saveErr = nil
	}
	return nil
}

func (c *Controller) writeWithRetry(ctx context.Context, p block.Patch) error {
	var err error
	wait := c.cfg.Retry.Backoff
	for attempt := 1; ; attempt++ {
		if err = c.host.Write(ctx, p); err == nil {
			return nil
		}
		if attempt >= c.cfg.Retry.Attempts {
			return err
		}
		c.cfg.Logger.Debug().Err(err).Int("attempt", attempt).Msg("Retrying settings write")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
		wait *= 2
	}
}

// Close flushes pending input edits and stops background work.
func (c *Controller) Close() {
	for _, cv := range c.canvases() {
		cv.Close()
	}
	c.cancel()
}
