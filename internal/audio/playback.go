package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

const (
	ResultCompleted   = "completed"
	ResultInterrupted = "interrupted"
	ResultSuperseded  = "superseded"
	ResultDecodeError = "decode_error"
	ResultStartError  = "start_error"
)

type QueueOptions struct {
	// OnSpeakingChange is called with the queue lock held; it must not
	// call back into the queue.
	OnSpeakingChange func(speaking bool)
	OnResult         func(result string)
}

// Queue plays at most one decoded payload at a time. A new Play always
// interrupts the current one.
type Queue struct {
	decoder Decoder
	output  Output
	opts    QueueOptions
	logger  zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	current *playbackHandle
}

type playbackHandle struct {
	seq   uint64
	voice Voice
}

func NewQueue(decoder Decoder, output Output, opts QueueOptions, logger zerolog.Logger) *Queue {
	if decoder == nil {
		decoder = ContainerDecoder{}
	}
	return &Queue{
		decoder: decoder,
		output:  output,
		opts:    opts,
		logger:  logger.With().Str("component", "playback").Logger(),
	}
}

// Play interrupts any current playback, decodes encoded and starts it.
// If another Play or StopCurrent happens while decoding, the result is
// dropped and Play returns nil.
func (q *Queue) Play(ctx context.Context, encoded []byte) error {
	q.mu.Lock()
	q.seq++
	seq := q.seq
	prev := q.takeCurrentLocked()
	q.mu.Unlock()
	if prev != nil {
		prev.voice.Stop()
		q.result(ResultInterrupted)
	}

	pcm, err := q.decoder.Decode(ctx, encoded)
	if errors.Is(err, context.Canceled) {
		q.result(ResultSuperseded)
		return nil
	}
	if err != nil {
		q.result(ResultDecodeError)
		return voiceerr.Playback("decode", err)
	}
	pcm = pcm.Convert(q.output.Format())

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seq != seq {
		q.logger.Debug().Uint64("seq", seq).Msg("dropping superseded playback")
		q.result(ResultSuperseded)
		return nil
	}
	voice, err := q.output.Start(pcm)
	if err != nil {
		q.result(ResultStartError)
		return voiceerr.Playback("start", err)
	}
	h := &playbackHandle{seq: seq, voice: voice}
	q.current = h
	q.speaking(true)
	go q.watch(h)
	return nil
}

// StopCurrent interrupts the active playback, if any, and cancels any
// Play still decoding.
func (q *Queue) StopCurrent() {
	q.mu.Lock()
	q.seq++
	prev := q.takeCurrentLocked()
	q.mu.Unlock()
	if prev != nil {
		prev.voice.Stop()
		q.result(ResultInterrupted)
	}
}

func (q *Queue) IsSpeaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

func (q *Queue) Close() error {
	q.StopCurrent()
	return q.output.Close()
}

func (q *Queue) takeCurrentLocked() *playbackHandle {
	h := q.current
	if h == nil {
		return nil
	}
	q.current = nil
	q.speaking(false)
	return h
}

func (q *Queue) watch(h *playbackHandle) {
	<-h.voice.Done()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != h {
		return
	}
	q.current = nil
	q.speaking(false)
	q.result(ResultCompleted)
}

func (q *Queue) speaking(v bool) {
	if q.opts.OnSpeakingChange != nil {
		q.opts.OnSpeakingChange(v)
	}
}

func (q *Queue) result(r string) {
	if q.opts.OnResult != nil {
		q.opts.OnResult(r)
	}
}
