package session

import (
	"context"
	"time"

	"github.com/omochi-ai/voicechat/internal/audio"
	"github.com/omochi-ai/voicechat/internal/conversation"
)

type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateStopped      State = "stopped"
)

// StopReason records which trigger tore a session down.
type StopReason string

const (
	ReasonUser           StopReason = "user"
	ReasonIdleTimeout    StopReason = "idle_timeout"
	ReasonHidden         StopReason = "hidden"
	ReasonConnectionLost StopReason = "connection_lost"
	ReasonStartFailed    StopReason = "start_failed"
	ReasonShutdown       StopReason = "shutdown"
)

// Microphone acquires the capture track for a session.
type Microphone interface {
	Acquire(ctx context.Context) (audio.Track, error)
}

// Peer is one negotiated connection plus its control channel.
type Peer interface {
	CreateOffer(ctx context.Context) (string, error)
	AcceptAnswer(sdp string) error
	ConnectionState() string
	ChannelOpen() bool
	Send(data []byte) error
	CloseChannel() error
	Close() error
}

// PeerEvents are delivered from transport goroutines.
type PeerEvents struct {
	OnOpen        func()
	OnClose       func()
	OnError       func(err error)
	OnMessage     func(data []byte)
	OnStateChange func(state string)
}

type PeerFactory interface {
	NewPeer(mic audio.Track, events PeerEvents) (Peer, error)
}

// Signaler performs the credential fetch and SDP exchange.
type Signaler interface {
	FetchCredential(ctx context.Context) (string, error)
	ExchangeOffer(ctx context.Context, offerSDP, token string) (string, error)
}

// Speaker renders finalized assistant text. Failures are its own concern.
type Speaker interface {
	SynthesizeAndPlay(ctx context.Context, text string)
}

// Player is the interruptible playback queue.
type Player interface {
	StopCurrent()
	IsSpeaking() bool
}

// Archiver persists finalized turns outside the control path.
type Archiver interface {
	ArchiveTurn(ctx context.Context, sessionID string, turn conversation.Turn) error
}

// Snapshot is the authoritative session state for presentation.
type Snapshot struct {
	SessionID       string              `json:"session_id,omitempty"`
	State           State               `json:"state"`
	Muted           bool                `json:"muted"`
	Hidden          bool                `json:"hidden"`
	Speaking        bool                `json:"speaking"`
	ChannelOpen     bool                `json:"channel_open"`
	ConnectionState string              `json:"connection_state,omitempty"`
	StartedAt       time.Time           `json:"started_at,omitempty"`
	LastActivityAt  time.Time           `json:"last_activity_at,omitempty"`
	StopReason      StopReason          `json:"stop_reason,omitempty"`
	Status          string              `json:"status,omitempty"`
	LastError       string              `json:"last_error,omitempty"`
	IdleTimeoutMS   int64               `json:"idle_timeout_ms"`
	Turns           []conversation.Turn `json:"turns"`
	Streaming       string              `json:"streaming"`
}
