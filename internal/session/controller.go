package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/audio"
	"github.com/omochi-ai/voicechat/internal/conversation"
	"github.com/omochi-ai/voicechat/internal/observability"
	"github.com/omochi-ai/voicechat/internal/protocol"
	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

const connectedState = "connected"

var (
	ErrNotActive       = errors.New("session is not active")
	ErrChannelNotReady = errors.New("control channel is not open")
	ErrAlreadyRunning  = errors.New("session already running")
	ErrStartAborted    = errors.New("session start aborted")
	ErrEmptyText       = errors.New("text is empty")
	ErrHidden          = errors.New("surface is hidden")
)

type Options struct {
	IdleTimeout    time.Duration
	HealthInterval time.Duration
	ArchiveTimeout time.Duration
}

type Deps struct {
	Microphone Microphone
	Peers      PeerFactory
	Signaler   Signaler
	Speaker    Speaker
	Player     Player
	Archiver   Archiver
	Metrics    *observability.Metrics
}

// Controller owns the single live voice session. Every async continuation
// carries the epoch it was started under and becomes a no-op once the
// session it belongs to has been torn down.
type Controller struct {
	deps    Deps
	opts    Options
	logger  zerolog.Logger
	bus     *eventBus
	log     *conversation.Log
	machine *protocol.Machine

	mu           sync.Mutex
	state        State
	epoch        uint64
	sessionID    string
	track        audio.Track
	peer         Peer
	muted        bool
	hidden       bool
	startedAt    time.Time
	lastActivity time.Time
	idleTimer    *time.Timer
	healthStop   chan struct{}
	inboundDone  chan struct{}
	releasing    chan struct{}
	cancel       context.CancelFunc
	sessionCtx   context.Context
	synthCancel  context.CancelFunc
	stopReason   StopReason
	status       string
	lastError    string
}

func NewController(deps Deps, opts Options, logger zerolog.Logger) *Controller {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 30 * time.Second
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = 5 * time.Second
	}

	c := &Controller{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "session").Logger(),
		state:  StateIdle,
	}
	c.bus = newEventBus(func() { deps.Metrics.EventDrops.Inc() })
	c.log = conversation.NewLog(logObserver{bus: c.bus})
	c.machine = protocol.NewMachine(c.log, c.onAssistantTurn, logger)
	return c
}

// Subscribe streams presentation events until cancel is called.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	return c.bus.subscribe(buffer)
}

// Start acquires the microphone, fetches a credential and negotiates the
// peer connection. Any failure tears down whatever was built and leaves
// the controller Stopped. A start issued while the previous session is
// still being released waits for that release to finish.
func (c *Controller) Start(ctx context.Context) error {
	begin := time.Now()

	c.mu.Lock()
	for c.releasing != nil {
		pending := c.releasing
		c.mu.Unlock()
		select {
		case <-pending:
		case <-ctx.Done():
			return ErrAlreadyRunning
		}
		c.mu.Lock()
	}
	if c.state == StateInitializing || c.state == StateActive {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if c.hidden {
		c.mu.Unlock()
		return ErrHidden
	}
	c.epoch++
	epoch := c.epoch
	c.state = StateInitializing
	c.sessionID = uuid.NewString()
	c.startedAt = time.Now().UTC()
	c.stopReason = ""
	c.lastError = ""
	c.sessionCtx, c.cancel = context.WithCancel(context.Background())
	sessionID := c.sessionID
	c.log.Reset()
	c.publishStateLocked()
	c.mu.Unlock()

	c.logger.Info().Str("session_id", sessionID).Msg("starting session")
	c.deps.Metrics.SessionEvents.WithLabelValues("start").Inc()

	track, err := c.deps.Microphone.Acquire(ctx)
	if err != nil {
		return c.failStart(epoch, err)
	}
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		track.Stop()
		return ErrStartAborted
	}
	c.track = track
	track.SetEnabled(!c.muted)
	c.mu.Unlock()

	token, err := c.deps.Signaler.FetchCredential(ctx)
	if err != nil {
		return c.failStart(epoch, err)
	}
	if !c.isCurrent(epoch) {
		return ErrStartAborted
	}

	inbound := make(chan []byte, 256)
	done := make(chan struct{})
	peer, err := c.deps.Peers.NewPeer(track, c.peerEvents(epoch, inbound, done))
	if err != nil {
		return c.failStart(epoch, voiceerr.Connection("new_peer", err))
	}
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		_ = peer.Close()
		return ErrStartAborted
	}
	c.peer = peer
	c.inboundDone = done
	c.mu.Unlock()
	go c.inboundLoop(epoch, inbound, done)

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		return c.failStart(epoch, voiceerr.Signaling("create_offer", err))
	}
	answer, err := c.deps.Signaler.ExchangeOffer(ctx, offer, token)
	if err != nil {
		return c.failStart(epoch, err)
	}
	if !c.isCurrent(epoch) {
		return ErrStartAborted
	}
	if err := peer.AcceptAnswer(answer); err != nil {
		return c.failStart(epoch, voiceerr.Signaling("accept_answer", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return ErrStartAborted
	}
	c.state = StateActive
	c.lastActivity = time.Now().UTC()
	c.idleTimer = time.AfterFunc(c.opts.IdleTimeout, func() { c.onIdle(epoch) })
	c.healthStop = make(chan struct{})
	go c.healthLoop(epoch, c.healthStop)
	c.deps.Metrics.ActiveSession.Set(1)
	c.deps.Metrics.ObserveStartLatency(time.Since(begin))
	c.publishStateLocked()
	c.logger.Info().Str("session_id", sessionID).Dur("elapsed", time.Since(begin)).Msg("session active")
	return nil
}

// Stop tears the session down. It returns false when there was nothing to
// stop.
func (c *Controller) Stop(reason StopReason) bool {
	c.mu.Lock()
	if c.state != StateActive && c.state != StateInitializing {
		c.mu.Unlock()
		return false
	}
	r := c.detachLocked(reason)
	c.mu.Unlock()
	c.release(r)
	return true
}

// SendText records a user turn and asks the assistant to respond. Any
// assistant speech or in-flight turn is preempted.
func (c *Controller) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return voiceerr.Validation("send_text", ErrEmptyText)
	}
	frames, err := protocol.UserTurnFrames(text)
	if err != nil {
		return voiceerr.Validation("send_text", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return ErrNotActive
	}
	if c.peer == nil || !c.peer.ChannelOpen() {
		return ErrChannelNotReady
	}

	c.interruptLocked()
	for i, f := range frames {
		if err := c.peer.Send(f); err != nil {
			if i == 0 {
				return voiceerr.Connection("send", err)
			}
			// The item reached the server but no response was requested.
			c.logger.Warn().Err(err).Str("session_id", c.sessionID).Int("frames_sent", i).Msg("partial send")
			c.appendUserLocked(text)
			return voiceerr.Connection("send", err)
		}
	}
	c.deps.Metrics.ObserveControlMessage("outbound", string(protocol.TypeConversationItemCreate))
	c.deps.Metrics.ObserveControlMessage("outbound", string(protocol.TypeResponseCreate))
	c.appendUserLocked(text)
	return nil
}

func (c *Controller) appendUserLocked(text string) {
	turn := c.log.AppendUser(text)
	c.log.ClearStreaming()
	c.touchLocked()
	c.archiveLocked(turn)
}

// SetMicMuted flips the capture track without reacquiring it. The flag is
// remembered and applied to the next acquired track. Unmuting counts as
// the user starting to talk and silences the assistant.
func (c *Controller) SetMicMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	if c.track != nil {
		c.track.SetEnabled(!muted)
	}
	if c.state == StateActive {
		if !muted {
			c.interruptLocked()
		}
		c.touchLocked()
	}
	c.bus.publish(Event{Type: EventMuted, Value: flag(muted)})
}

// SetHidden applies the visibility policy: a session never survives the
// host surface being hidden.
func (c *Controller) SetHidden(hidden bool) {
	c.mu.Lock()
	c.hidden = hidden
	if !hidden || (c.state != StateActive && c.state != StateInitializing) {
		c.mu.Unlock()
		return
	}
	r := c.detachLocked(ReasonHidden)
	c.mu.Unlock()
	c.release(r)
}

// NotifySpeaking forwards playback state changes to subscribers.
func (c *Controller) NotifySpeaking(speaking bool) {
	c.bus.publish(Event{Type: EventSpeaking, Value: flag(speaking)})
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	logSnap := c.log.Snapshot()
	s := Snapshot{
		SessionID:      c.sessionID,
		State:          c.state,
		Muted:          c.muted,
		Hidden:         c.hidden,
		StartedAt:      c.startedAt,
		LastActivityAt: c.lastActivity,
		StopReason:     c.stopReason,
		Status:         c.status,
		LastError:      c.lastError,
		IdleTimeoutMS:  c.opts.IdleTimeout.Milliseconds(),
		Turns:          logSnap.Turns,
		Streaming:      logSnap.Streaming,
	}
	if c.deps.Player != nil {
		s.Speaking = c.deps.Player.IsSpeaking()
	}
	if c.peer != nil {
		s.ChannelOpen = c.peer.ChannelOpen()
		s.ConnectionState = c.peer.ConnectionState()
	}
	return s
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) isCurrent(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

func (c *Controller) peerEvents(epoch uint64, inbound chan<- []byte, done <-chan struct{}) PeerEvents {
	return PeerEvents{
		OnOpen: func() {
			c.setStatus(epoch, "Connection: channel open")
		},
		OnClose: func() {
			c.setStatus(epoch, "Connection: channel closed")
		},
		OnError: func(err error) {
			c.logger.Warn().Err(err).Msg("control channel error")
		},
		OnMessage: func(data []byte) {
			select {
			case inbound <- data:
			case <-done:
			}
		},
		OnStateChange: func(state string) {
			c.setStatus(epoch, "Connection: "+state)
		},
	}
}

// inboundLoop applies control messages strictly in arrival order.
func (c *Controller) inboundLoop(epoch uint64, inbound <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case raw := <-inbound:
			c.mu.Lock()
			if c.epoch != epoch {
				c.mu.Unlock()
				return
			}
			typ, _ := c.machine.Handle(raw)
			c.mu.Unlock()
			c.deps.Metrics.ObserveControlMessage("inbound", string(typ))
		}
	}
}

// onAssistantTurn runs inside inboundLoop with c.mu held.
func (c *Controller) onAssistantTurn(turn conversation.Turn) {
	if c.synthCancel != nil {
		c.synthCancel()
	}
	ctx, cancel := context.WithCancel(c.sessionCtx)
	c.synthCancel = cancel
	c.archiveLocked(turn)
	if c.deps.Speaker == nil {
		return
	}
	go func() {
		defer cancel()
		c.deps.Speaker.SynthesizeAndPlay(ctx, turn.Text)
	}()
}

// interruptLocked cancels pending synthesis and stops current playback.
func (c *Controller) interruptLocked() {
	if c.synthCancel != nil {
		c.synthCancel()
		c.synthCancel = nil
	}
	if c.deps.Player != nil {
		c.deps.Player.StopCurrent()
	}
}

func (c *Controller) touchLocked() {
	c.lastActivity = time.Now().UTC()
	if c.idleTimer != nil {
		c.idleTimer.Reset(c.opts.IdleTimeout)
	}
}

func (c *Controller) onIdle(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != StateActive {
		c.mu.Unlock()
		return
	}
	if remaining := c.opts.IdleTimeout - time.Since(c.lastActivity); remaining > 0 {
		c.idleTimer.Reset(remaining)
		c.mu.Unlock()
		return
	}
	c.logger.Info().Str("session_id", c.sessionID).Msg("idle timeout")
	r := c.detachLocked(ReasonIdleTimeout)
	c.mu.Unlock()
	c.release(r)
}

func (c *Controller) healthLoop(epoch uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.epoch != epoch || c.state != StateActive || c.peer == nil {
				c.mu.Unlock()
				return
			}
			state := c.peer.ConnectionState()
			if state == connectedState {
				c.mu.Unlock()
				continue
			}
			c.logger.Warn().Str("session_id", c.sessionID).Str("connection_state", state).Msg("health check failed")
			c.lastError = voiceerr.Connection("health_check", fmt.Errorf("peer connection %s", state)).Error()
			r := c.detachLocked(ReasonConnectionLost)
			c.mu.Unlock()
			c.release(r)
			return
		}
	}
}

func (c *Controller) failStart(epoch uint64, err error) error {
	kind, ok := voiceerr.KindOf(err)
	if !ok {
		kind = "unknown"
	}
	c.deps.Metrics.StartFailures.WithLabelValues(string(kind)).Inc()
	c.logger.Warn().Err(err).Bool("retryable", voiceerr.Retryable(err)).Msg("session start failed")

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return err
	}
	c.lastError = err.Error()
	c.status = "Error: " + err.Error()
	c.bus.publish(Event{Type: EventStatus, Text: c.status})
	r := c.detachLocked(ReasonStartFailed)
	c.mu.Unlock()
	c.release(r)
	return err
}

func (c *Controller) setStatus(epoch uint64, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	c.status = status
	c.bus.publish(Event{Type: EventStatus, Text: status})
}

func (c *Controller) publishStateLocked() {
	c.bus.publish(Event{Type: EventState, State: c.state, Reason: c.stopReason, SessionID: c.sessionID})
}

// teardown holds the resources detached from a session, released in
// order outside the lock.
type teardown struct {
	epoch       uint64
	peer        Peer
	track       audio.Track
	idleTimer   *time.Timer
	healthStop  chan struct{}
	inboundDone chan struct{}
	synthCancel context.CancelFunc
	cancel      context.CancelFunc
	done        chan struct{}
}

func (c *Controller) detachLocked(reason StopReason) teardown {
	c.epoch++
	r := teardown{
		epoch:       c.epoch,
		peer:        c.peer,
		track:       c.track,
		idleTimer:   c.idleTimer,
		healthStop:  c.healthStop,
		inboundDone: c.inboundDone,
		synthCancel: c.synthCancel,
		cancel:      c.cancel,
		done:        make(chan struct{}),
	}
	c.releasing = r.done
	c.peer = nil
	c.track = nil
	c.idleTimer = nil
	c.healthStop = nil
	c.inboundDone = nil
	c.synthCancel = nil
	c.cancel = nil
	c.state = StateStopped
	c.stopReason = reason

	c.deps.Metrics.ActiveSession.Set(0)
	c.deps.Metrics.SessionEvents.WithLabelValues("stop_" + string(reason)).Inc()
	c.publishStateLocked()
	c.logger.Info().Str("session_id", c.sessionID).Str("reason", string(reason)).Msg("session stopped")
	return r
}

// release runs the teardown steps in their fixed order. Every step
// tolerates a resource that was never acquired.
func (c *Controller) release(r teardown) {
	if r.peer != nil {
		if err := r.peer.CloseChannel(); err != nil {
			c.logger.Debug().Err(err).Msg("close control channel")
		}
		if err := r.peer.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("close peer connection")
		}
	}
	if r.synthCancel != nil {
		r.synthCancel()
	}
	if c.deps.Player != nil {
		c.deps.Player.StopCurrent()
	}
	if r.track != nil {
		r.track.Stop()
	}
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	if r.healthStop != nil {
		close(r.healthStop)
	}
	if r.inboundDone != nil {
		close(r.inboundDone)
	}
	if r.cancel != nil {
		r.cancel()
	}

	c.mu.Lock()
	if c.epoch == r.epoch {
		c.log.Reset()
	}
	if c.releasing == r.done {
		c.releasing = nil
	}
	c.mu.Unlock()
	close(r.done)
}

func (c *Controller) archiveLocked(turn conversation.Turn) {
	if c.deps.Archiver == nil {
		return
	}
	sessionID := c.sessionID
	timeout := c.opts.ArchiveTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := c.deps.Archiver.ArchiveTurn(ctx, sessionID, turn); err != nil {
			c.logger.Warn().Err(err).Str("session_id", sessionID).Int("seq", turn.Seq).Msg("archive turn failed")
		}
	}()
}
