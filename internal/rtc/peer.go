package rtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/audio"
)

const DefaultChannelLabel = "response"

var ErrChannelClosed = errors.New("data channel is not open")

type Config struct {
	ICEServers   []string
	ChannelLabel string
}

// Handlers receive data channel and connection events. They run on pion's
// callback goroutines and must not block.
type Handlers struct {
	OnOpen        func()
	OnClose       func()
	OnError       func(err error)
	OnMessage     func(data []byte)
	OnStateChange func(state string)
}

// Factory builds peer connections that carry one Opus microphone track and
// one reliable ordered data channel.
type Factory struct {
	cfg    Config
	api    *webrtc.API
	logger zerolog.Logger
}

func NewFactory(cfg Config, logger zerolog.Logger) (*Factory, error) {
	if strings.TrimSpace(cfg.ChannelLabel) == "" {
		cfg.ChannelLabel = DefaultChannelLabel
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return &Factory{
		cfg: cfg,
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
		),
		logger: logger.With().Str("component", "rtc").Logger(),
	}, nil
}

// Peer wraps one pion PeerConnection and its control data channel.
type Peer struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	logger zerolog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPeer creates the connection, attaches mic (if non-nil) as an Opus
// send track and opens the data channel. Nothing is negotiated until
// CreateOffer.
func (f *Factory) NewPeer(mic audio.Track, h Handlers) (*Peer, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers(f.cfg.ICEServers)})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{pc: pc, logger: f.logger, cancel: cancel}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Info().Str("state", state.String()).Msg("peer connection state changed")
		if h.OnStateChange != nil {
			h.OnStateChange(state.String())
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.logger.Debug().Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("remote track received")
		go drainRemote(track)
	})

	if mic != nil {
		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio",
			"voicechat-mic",
		)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("create local track: %w", err)
		}
		sender, err := pc.AddTrack(local)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("add track: %w", err)
		}
		p.wg.Add(2)
		go func() {
			defer p.wg.Done()
			drainRTCP(sender)
		}()
		go func() {
			defer p.wg.Done()
			if err := runUplink(ctx, mic, local, p.logger); err != nil {
				p.logger.Warn().Err(err).Msg("uplink stopped")
			}
		}()
	}

	ordered := true
	dc, err := pc.CreateDataChannel(f.cfg.ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	dc.OnOpen(func() {
		if h.OnOpen != nil {
			h.OnOpen()
		}
	})
	dc.OnClose(func() {
		if h.OnClose != nil {
			h.OnClose()
		}
	})
	dc.OnError(func(err error) {
		if h.OnError != nil {
			h.OnError(err)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if h.OnMessage != nil {
			h.OnMessage(msg.Data)
		}
	})
	p.dc = dc
	return p, nil
}

// CreateOffer sets the local description and waits for ICE gathering so
// the returned SDP carries every candidate.
func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *Peer) AcceptAnswer(sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (p *Peer) ConnectionState() string {
	return p.pc.ConnectionState().String()
}

func (p *Peer) ChannelOpen() bool {
	return p.dc != nil && p.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (p *Peer) Send(data []byte) error {
	if !p.ChannelOpen() {
		return ErrChannelClosed
	}
	return p.dc.SendText(string(data))
}

func (p *Peer) CloseChannel() error {
	if p.dc == nil {
		return nil
	}
	return p.dc.Close()
}

// Close tears down the connection and waits for the uplink to exit.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		err = p.pc.Close()
		p.wg.Wait()
	})
	return err
}

func iceServers(urls []string) []webrtc.ICEServer {
	var out []webrtc.ICEServer
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, webrtc.ICEServer{URLs: []string{u}})
	}
	return out
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// The session runs in text modality; inbound media is read and dropped so
// the receiver's buffers never fill.
func drainRemote(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
