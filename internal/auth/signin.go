package auth

import (
	"sync"

	"github.com/google/uuid"

	"nametagauth-go/internal/frame"
	"nametagauth-go/internal/loop"
	"nametagauth-go/internal/metrics"
)

// FrameHost embeds and removes the hidden frames that poll the
// authorization server. Implementations must keep frames invisible to
// the end user.
type FrameHost interface {
	// CreateFrame embeds a hidden frame identified by id, loading
	// authorizeURL.
	CreateFrame(id, authorizeURL string) error
	// DestroyFrame removes the frame. Destroying an unknown id is a
	// no-op.
	DestroyFrame(id string)
}

// Controller drives the embedded sign-in handshake: it owns the hidden
// frame and the state machine validating its messages, recreates the
// frame on every hide/show cycle of the dependent UI, and replays the
// latest QR or error to a surface that reappears.
type Controller struct {
	mu      sync.Mutex
	auth    *Auth
	host    FrameHost
	ui      frame.UISurface
	machine *frame.Machine
	frameID string
	visible bool
}

// NewController wires a Controller to this engine. UI callbacks are
// delivered on the engine's dispatch loop.
func (a *Auth) NewController(host FrameHost, ui frame.UISurface) *Controller {
	deferred := &loopSurface{loop: a.loop, ui: ui}
	c := &Controller{
		auth: a,
		host: host,
		ui:   deferred,
	}
	c.machine = frame.NewMachine(a.ServerOrigin(), deferred, pageNavigator{a.page}, a.logger)
	return c
}

// Start validates the page origin and creates the first frame, entering
// the polling phase. It is also used to restart a cycle after Hide.
func (c *Controller) Start() error {
	if err := c.auth.validatePageOrigin(); err != nil {
		c.auth.logger.Printf("[%s] %v", c.auth.State(), err)
		return err
	}

	authorizeURL, err := c.auth.AuthorizeURL(ModeIframe)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frameID != "" {
		c.host.DestroyFrame(c.frameID)
		c.frameID = ""
	}

	id := uuid.NewString()
	if err := c.host.CreateFrame(id, authorizeURL); err != nil {
		return err
	}
	c.frameID = id
	c.machine.Reset(c.auth.State(), id)
	return nil
}

// Show marks the dependent UI visible and replays the latest QR or error
// so the surface reflects the in-flight handshake.
func (c *Controller) Show() {
	c.mu.Lock()
	c.visible = true
	c.mu.Unlock()

	if msg := c.machine.LastError(); msg != "" {
		c.ui.ShowError(msg)
	}
	if qr := c.machine.LastQR(); qr != "" {
		c.ui.ShowQR(qr)
	}
}

// Hide marks the dependent UI hidden and recreates the frame, so no stale
// polling session outlives the point where the user could see its result.
func (c *Controller) Hide() error {
	c.mu.Lock()
	c.visible = false
	c.mu.Unlock()
	return c.Start()
}

// HandleMessage feeds an inbound cross-context message to the admission
// checks and state machine.
func (c *Controller) HandleMessage(env frame.Envelope) {
	c.machine.HandleMessage(env)
}

// Phase exposes the machine's phase, mostly for tests and host
// diagnostics.
func (c *Controller) Phase() frame.Phase {
	return c.machine.Phase()
}

// FrameID returns the identity of the live frame, or "" when none.
func (c *Controller) FrameID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameID
}

// Close tears the frame down for good.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frameID != "" {
		c.host.DestroyFrame(c.frameID)
		c.frameID = ""
	}
	c.machine.Teardown()
}

// pageNavigator adapts the engine's Page to the machine's Navigator.
type pageNavigator struct {
	page Page
}

func (n pageNavigator) Navigate(url string) {
	n.page.Navigate(url)
}

// loopSurface defers UI callbacks onto the dispatch loop so they never
// run concurrently with each other or with watch deliveries.
type loopSurface struct {
	loop *loop.Loop
	ui   frame.UISurface
}

func (s *loopSurface) ShowQR(qr string) {
	if !s.loop.Post(func() { s.ui.ShowQR(qr) }) {
		metrics.DroppedPosts.Inc()
	}
}

func (s *loopSurface) ShowError(msg string) {
	if !s.loop.Post(func() { s.ui.ShowError(msg) }) {
		metrics.DroppedPosts.Inc()
	}
}
