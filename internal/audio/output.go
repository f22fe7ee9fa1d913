package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Output starts playback of PCM already converted to Format().
type Output interface {
	Format() Format
	Start(p PCM) (Voice, error)
	Close() error
}

// Voice is one started playback. Done closes on natural completion or Stop.
type Voice interface {
	Done() <-chan struct{}
	Stop()
}

// OtoOutput plays through the system speaker. oto allows one context per
// process, so it is created lazily on first use and shared.
type OtoOutput struct {
	format Format

	once    sync.Once
	ctx     *oto.Context
	initErr error
}

func NewOtoOutput(format Format) *OtoOutput {
	if format.SampleRate <= 0 {
		format.SampleRate = 24000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	return &OtoOutput{format: format}
}

func (o *OtoOutput) Format() Format { return o.format }

func (o *OtoOutput) init() error {
	o.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   o.format.SampleRate,
			ChannelCount: o.format.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			o.initErr = fmt.Errorf("init speaker: %w", err)
			return
		}
		<-ready
		o.ctx = ctx
	})
	return o.initErr
}

func (o *OtoOutput) Start(p PCM) (Voice, error) {
	if err := o.init(); err != nil {
		return nil, err
	}
	player := o.ctx.NewPlayer(bytes.NewReader(p.Bytes()))
	v := &otoVoice{player: player, done: make(chan struct{}), stop: make(chan struct{})}
	player.Play()
	go v.watch()
	return v, nil
}

func (o *OtoOutput) Close() error {
	if o.ctx == nil {
		return nil
	}
	return o.ctx.Suspend()
}

type otoVoice struct {
	player   *oto.Player
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func (v *otoVoice) Done() <-chan struct{} { return v.done }

func (v *otoVoice) Stop() {
	v.stopOnce.Do(func() { close(v.stop) })
	<-v.done
}

func (v *otoVoice) watch() {
	defer close(v.done)
	defer v.player.Close()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-v.stop:
			v.player.Pause()
			return
		case <-ticker.C:
			if !v.player.IsPlaying() {
				return
			}
		}
	}
}

// NullOutput discards audio but keeps real-time pacing, so speaking state
// behaves the same on hosts without a sound device.
type NullOutput struct {
	format Format
}

func NewNullOutput(format Format) *NullOutput {
	if format.SampleRate <= 0 {
		format.SampleRate = 24000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	return &NullOutput{format: format}
}

func (o *NullOutput) Format() Format { return o.format }

func (o *NullOutput) Start(p PCM) (Voice, error) {
	v := &timedVoice{done: make(chan struct{})}
	v.timer = time.AfterFunc(p.Duration(), v.finish)
	return v, nil
}

func (o *NullOutput) Close() error { return nil }

type timedVoice struct {
	timer *time.Timer
	once  sync.Once
	done  chan struct{}
}

func (v *timedVoice) finish() { v.once.Do(func() { close(v.done) }) }

func (v *timedVoice) Done() <-chan struct{} { return v.done }

func (v *timedVoice) Stop() {
	v.timer.Stop()
	v.finish()
}
