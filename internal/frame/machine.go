package frame

import (
	"log"
	"os"
	"strconv"
	"sync"

	"nametagauth-go/internal/metrics"
)

// Phase is the state of the handshake machine for the current frame
// instance.
type Phase int

const (
	// PhaseIdle means no frame is live.
	PhaseIdle Phase = iota
	// PhasePolling means a frame is live and pending messages are
	// expected.
	PhasePolling
	// PhaseApproved is terminal: the user accepted and a navigation is
	// pending.
	PhaseApproved
	// PhaseRejected is terminal: the user declined.
	PhaseRejected
	// PhaseDeveloperError is terminal: the server reported a developer
	// error.
	PhaseDeveloperError
)

// RejectedMessage is the fixed user-facing text for a declined request.
const RejectedMessage = "You choose not to accept the request"

// GenericErrorMessage is the fallback when the server provides no detail.
const GenericErrorMessage = "Something went wrong"

// UISurface receives user-visible updates from the machine. Rendering is
// the caller's concern; calls may repeat with identical payloads.
type UISurface interface {
	ShowQR(qr string)
	ShowError(message string)
}

// Navigator performs the top-level navigation that hands the session off
// to the callback URL.
type Navigator interface {
	Navigate(url string)
}

// Machine owns the handshake with one hidden frame instance at a time. It
// validates inbound messages by origin, source and session state, and
// drives phase transitions from polling status codes. Violations of the
// admission policy are dropped without logging: a mismatched origin is a
// security boundary doing its job, not a protocol failure.
type Machine struct {
	mu           sync.Mutex
	serverOrigin string
	logger       *log.Logger
	ui           UISurface
	nav          Navigator

	phase   Phase
	state   string
	frameID string

	lastQR    string
	lastError string
}

// NewMachine creates a Machine for the given authorization server origin.
// ui and nav must be non-nil; a nil logger falls back to a default.
func NewMachine(serverOrigin string, ui UISurface, nav Navigator, logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.New(os.Stdout, "nametagauth: ", log.LstdFlags)
	}
	return &Machine{
		serverOrigin: serverOrigin,
		logger:       logger,
		ui:           ui,
		nav:          nav,
		phase:        PhaseIdle,
	}
}

// Reset binds the machine to a freshly created frame instance and enters
// Polling. Any QR or error retained from the previous cycle is discarded;
// messages from earlier frames no longer pass admission.
func (m *Machine) Reset(state, frameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.frameID = frameID
	m.phase = PhasePolling
	m.lastQR = ""
	m.lastError = ""
}

// Teardown detaches the machine from its frame and returns to Idle.
func (m *Machine) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameID = ""
	m.phase = PhaseIdle
	m.lastQR = ""
	m.lastError = ""
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// FrameID returns the identity of the live frame, or "" when idle.
func (m *Machine) FrameID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameID
}

// LastQR returns the most recent QR payload for the current cycle, so a
// re-shown UI surface can replay it.
func (m *Machine) LastQR() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQR
}

// LastError returns the retained error message for the current cycle.
func (m *Machine) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// HandleMessage applies the admission policy to env and, if it passes,
// advances the machine. Inadmissible messages are dropped silently.
func (m *Machine) HandleMessage(env Envelope) {
	m.mu.Lock()

	if !m.admitLocked(env) {
		m.mu.Unlock()
		return
	}

	msg := env.Data
	metrics.FrameMessages.WithLabelValues(strconv.Itoa(int(msg.Status))).Inc()

	// Terminal phases accept no transitions. A repeated approval may
	// re-trigger the pending navigation, nothing more.
	if m.phase != PhasePolling {
		terminal := m.phase == PhaseApproved
		m.mu.Unlock()
		if terminal && msg.Status == StatusApproved && msg.RedirectURI != "" {
			m.nav.Navigate(msg.RedirectURI)
		}
		return
	}

	var showQR, showError string
	var navigateTo string

	if msg.QR != "" {
		m.lastQR = msg.QR
		showQR = msg.QR
	}

	switch msg.Status {
	case StatusPending:
		// Keep waiting.

	case StatusDeveloperError:
		detail := msg.ErrorMessage
		if detail == "" {
			detail = GenericErrorMessage
		}
		m.logger.Printf("[%s] developer error: %s", m.state, detail)
		m.lastError = detail
		m.phase = PhaseDeveloperError
		showError = detail

	case StatusRejected:
		m.logger.Printf("[%s] user rejected the request", m.state)
		m.lastError = RejectedMessage
		m.phase = PhaseRejected
		showError = RejectedMessage

	case StatusApproved:
		m.logger.Printf("[%s] user accepted the request", m.state)
		m.phase = PhaseApproved
		if msg.RedirectURI == "" {
			// Internal contract violation by the server; the pending
			// navigation never materializes but session state is intact.
			m.logger.Printf("[%s] internal error: expected redirect_uri when status is 200", m.state)
		} else {
			navigateTo = msg.RedirectURI
		}
	}

	m.mu.Unlock()

	if showQR != "" {
		m.ui.ShowQR(showQR)
	}
	if showError != "" {
		m.ui.ShowError(showError)
	}
	if navigateTo != "" {
		m.nav.Navigate(navigateTo)
	}
}

// admitLocked applies the three-way admission policy. Caller holds m.mu.
func (m *Machine) admitLocked(env Envelope) bool {
	if env.Origin != m.serverOrigin {
		metrics.FrameMessagesDropped.WithLabelValues("origin").Inc()
		return false
	}
	if m.frameID == "" || env.Source != m.frameID {
		metrics.FrameMessagesDropped.WithLabelValues("source").Inc()
		return false
	}
	if env.Data.State != m.state {
		metrics.FrameMessagesDropped.WithLabelValues("state").Inc()
		return false
	}
	return true
}
