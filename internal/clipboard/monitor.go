package clipboard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"clipvault/internal/content"
	"clipvault/internal/logger"
	"clipvault/pkg/types"
)

// DefaultPollInterval is the poll period used when none is configured.
const DefaultPollInterval = 700 * time.Millisecond

// Handler receives each newly detected clipboard payload together with
// best-effort source-application attribution.
type Handler func(types.Payload, types.SourceApp)

// Monitor polls the system clipboard at a fixed interval and emits new
// payloads. It is a single producer: the handler runs inline on the poll
// goroutine, so at most one payload is ever in flight and a tick that is
// still processing a capture cannot start a new read.
type Monitor struct {
	access   Access
	focus    FocusProvider
	interval time.Duration
	log      *logger.Logger

	mu         sync.Mutex
	handler    Handler
	running    bool
	done       chan struct{}
	wg         sync.WaitGroup
	lastCount  int64
	skipTokens int
}

// NewMonitor creates a stopped monitor. focus may be nil, in which case
// every capture is attributed to the unknown source.
func NewMonitor(access Access, focus FocusProvider, interval time.Duration, log *logger.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if focus == nil {
		focus = unknownFocus{}
	}
	return &Monitor{
		access:   access,
		focus:    focus,
		interval: interval,
		log:      log,
	}
}

// OnChange registers the payload handler. Must be called before Start.
func (m *Monitor) OnChange(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Start transitions the monitor to Running. The current change counter is
// taken as the baseline so pre-existing clipboard content is not replayed.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor is already running")
	}

	m.lastCount = m.access.ChangeCounter()
	m.done = make(chan struct{})
	m.running = true

	m.wg.Add(1)
	go m.poll(m.done)

	m.log.Info().Dur("interval", m.interval).Msg("clipboard monitor started")
	return nil
}

// Stop cancels the pending timer and waits for the poll goroutine to
// exit. No payload is delivered after Stop returns. Stopping a stopped
// monitor is a no-op.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info().Msg("clipboard monitor stopped")
	return nil
}

// SkipNext arms one skip token. The next detected clipboard change is
// consumed silently instead of being emitted, preventing the application's
// own writes from being re-captured as new external content.
func (m *Monitor) SkipNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipTokens++
}

// Write puts data on the system clipboard on the user's behalf, arming a
// skip token first so the resulting change counter bump is not captured.
func (m *Monitor) Write(kind types.Kind, data []byte) error {
	m.SkipNext()
	if err := m.access.Write(kind, data); err != nil {
		// The write never happened, so no echo will arrive; disarm.
		m.mu.Lock()
		if m.skipTokens > 0 {
			m.skipTokens--
		}
		m.mu.Unlock()
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

func (m *Monitor) poll(done chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	count := m.access.ChangeCounter()

	m.mu.Lock()
	if count == m.lastCount {
		m.mu.Unlock()
		return
	}
	m.lastCount = count

	if m.skipTokens > 0 {
		m.skipTokens--
		m.mu.Unlock()
		m.log.Debug().Int64("count", count).Msg("skipped self-triggered clipboard change")
		return
	}
	handler := m.handler
	m.mu.Unlock()

	raw, err := m.access.Read()
	if err != nil {
		// Transient read failure: a no-op tick, not an error.
		m.log.Debug().Err(err).Msg("clipboard read failed")
		return
	}
	if raw.Empty() {
		return
	}

	payload, ok := buildPayload(raw)
	if !ok {
		return
	}

	if handler != nil {
		handler(payload, m.focus.FrontmostApp())
	}
}

// buildPayload applies the extraction priority image > URL > non-empty
// trimmed text and computes the content fingerprint.
func buildPayload(raw RawContent) (types.Payload, bool) {
	if len(raw.Image) > 0 {
		return types.Payload{
			Kind:         types.KindImage,
			Image:        raw.Image,
			ContentHash:  content.Fingerprint(types.KindImage, raw.Image),
			PayloadBytes: int64(len(raw.Image)),
		}, true
	}

	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return types.Payload{}, false
	}

	if content.IsURL(text) {
		return types.Payload{
			Kind:         types.KindURL,
			URL:          text,
			ContentHash:  content.Fingerprint(types.KindURL, []byte(text)),
			PayloadBytes: int64(len(text)),
		}, true
	}

	return types.Payload{
		Kind:         types.KindText,
		Text:         text,
		ContentHash:  content.Fingerprint(types.KindText, []byte(text)),
		PayloadBytes: int64(len(text)),
	}, true
}
