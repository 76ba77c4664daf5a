// Package connectivity tracks the online/offline state of the device.
//
// Where the sync server exposes a push notify channel (a websocket
// endpoint), the monitor is event-driven: a live socket means online,
// a read error means offline. The capability is detected by probing the
// endpoint, never by sniffing platform identifiers. Platforms without
// the push channel fall back to polling a health endpoint on a timed
// interval, and the poll loop is paused while the app is not visible.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opsly/offline/internal/logging"
)

// probeTimeout bounds the push-capability probe and each poll request.
const probeTimeout = 5 * time.Second

// Monitor exposes a boolean online/offline signal and notifies
// listeners on transitions.
type Monitor struct {
	pushURL      string // ws:// or wss:// notify endpoint; empty disables the probe
	healthURL    string
	pollInterval time.Duration

	httpClient *http.Client
	dialer     *websocket.Dialer

	mu        sync.RWMutex
	online    bool
	suspended bool
	usingPush bool
	running   bool
	listeners []func(online bool)

	stopCh chan struct{}
	wakeCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Monitor. pushURL may be empty when the deployment has
// no push channel; the monitor then polls healthURL.
func New(pushURL, healthURL string, pollInterval time.Duration) *Monitor {
	return &Monitor{
		pushURL:      pushURL,
		healthURL:    healthURL,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: probeTimeout},
		dialer:       &websocket.Dialer{HandshakeTimeout: probeTimeout},
		stopCh:       make(chan struct{}),
		wakeCh:       make(chan struct{}, 1),
	}
}

// OnTransition registers a listener invoked on every online/offline
// transition. Register before Start.
func (m *Monitor) OnTransition(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Online returns the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// UsingPush reports whether the push channel probe succeeded.
func (m *Monitor) UsingPush() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usingPush
}

// Start probes for the push capability and begins monitoring. Idempotent.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	usePush := m.pushURL != "" && m.probePush(ctx)
	m.mu.Lock()
	m.usingPush = usePush
	m.mu.Unlock()

	m.wg.Add(1)
	if usePush {
		logging.Info("connectivity: push channel available", logging.Fields{"endpoint": m.pushURL})
		go m.pushLoop(ctx)
	} else {
		logging.Info("connectivity: no push channel, falling back to polling", logging.Fields{
			"interval": m.pollInterval.String(),
		})
		go m.pollLoop(ctx)
	}
}

// Stop shuts the monitor down and waits for its goroutine.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

// Suspend pauses probing while the app is not visible. The current
// online state is retained; no transitions fire while suspended.
func (m *Monitor) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = true
}

// Resume restarts probing after visibility returns and triggers an
// immediate probe so a missed transition is picked up promptly.
func (m *Monitor) Resume() {
	m.mu.Lock()
	m.suspended = false
	m.mu.Unlock()

	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
}

func (m *Monitor) isSuspended() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.suspended
}

// probePush attempts one websocket dial to detect the push capability.
func (m *Monitor) probePush(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	conn, _, err := m.dialer.DialContext(dialCtx, m.pushURL, nil)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// pushLoop keeps a notify socket open. A live socket is the online
// signal; a read error flips to offline and the loop redials.
func (m *Monitor) pushLoop(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if m.isSuspended() {
			if !m.waitWake(ctx) {
				return
			}
			continue
		}

		conn, _, err := m.dialer.DialContext(ctx, m.pushURL, nil)
		if err != nil {
			m.setOnline(false)
			if !m.sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}

		m.setOnline(true)
		m.readUntilClosed(ctx, conn)
		m.setOnline(false)
	}
}

// readUntilClosed consumes notify frames until the socket dies or the
// monitor stops.
func (m *Monitor) readUntilClosed(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-m.stopCh:
	case <-ctx.Done():
	}
}

// pollLoop probes the health endpoint on a timed interval, skipping
// probes while suspended.
func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	m.probeOnce(ctx)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-m.wakeCh:
			m.probeOnce(ctx)
		case <-ticker.C:
			if m.isSuspended() {
				continue
			}
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	if m.healthURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.healthURL, nil)
	if err != nil {
		m.setOnline(false)
		return
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.setOnline(false)
		return
	}
	resp.Body.Close()
	m.setOnline(resp.StatusCode < http.StatusInternalServerError)
}

// setOnline records a state change and fires listeners on transitions.
func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	logging.Info("connectivity changed", logging.Fields{"online": online})
	for _, fn := range listeners {
		go fn(online)
	}
}

// sleep waits for d, interruptible by stop, cancel, or Resume.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-m.wakeCh:
		return true
	case <-m.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// waitWake blocks until Resume, stop, or cancel.
func (m *Monitor) waitWake(ctx context.Context) bool {
	select {
	case <-m.wakeCh:
		return true
	case <-m.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
