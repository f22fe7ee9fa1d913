package app

import (
	"github.com/omochi-ai/voicechat/internal/audio"
	"github.com/omochi-ai/voicechat/internal/rtc"
	"github.com/omochi-ai/voicechat/internal/session"
)

// peerFactory exposes rtc peers to the session controller.
type peerFactory struct {
	factory *rtc.Factory
}

func (f peerFactory) NewPeer(mic audio.Track, events session.PeerEvents) (session.Peer, error) {
	p, err := f.factory.NewPeer(mic, rtc.Handlers{
		OnOpen:        events.OnOpen,
		OnClose:       events.OnClose,
		OnError:       events.OnError,
		OnMessage:     events.OnMessage,
		OnStateChange: events.OnStateChange,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
