package protocol

import (
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/conversation"
)

// TurnHandler is invoked with each assistant turn finalized by a text.done.
type TurnHandler func(turn conversation.Turn)

var _ Handler = (*Machine)(nil)

// Machine reconstructs assistant turns from streamed control messages.
// Messages must be fed in arrival order from a single goroutine.
type Machine struct {
	log        *conversation.Log
	onTurnDone TurnHandler
	logger     zerolog.Logger
}

func NewMachine(log *conversation.Log, onTurnDone TurnHandler, logger zerolog.Logger) *Machine {
	return &Machine{
		log:        log,
		onTurnDone: onTurnDone,
		logger:     logger.With().Str("component", "protocol").Logger(),
	}
}

// Handle parses and applies one inbound message. Invalid messages are
// logged and returned as ValidationErrors without touching any state.
func (m *Machine) Handle(raw []byte) (MessageType, error) {
	msg, err := ParseServerMessage(raw)
	if err != nil {
		m.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("discarding control message")
		return "", err
	}
	Dispatch(msg, m)
	return msg.MessageType(), nil
}

func (m *Machine) OnSessionCreated(SessionCreated) {
	m.logger.Debug().Msg("session created")
}

func (m *Machine) OnSessionUpdated(SessionUpdated) {}

// Turn history is rebuilt from deltas; the server's item echo would
// duplicate the user turn already appended on submit.
func (m *Machine) OnConversationItemCreated(ConversationItemCreated) {}

func (m *Machine) OnResponseCreated(ResponseCreated) {}

func (m *Machine) OnRateLimitsUpdated(msg RateLimitsUpdated) {
	m.logger.Debug().RawJSON("rate_limits", rawOrNull(msg.RateLimits)).Msg("rate limits updated")
}

func (m *Machine) OnResponseOutputItemAdded(ResponseOutputItemAdded) {}

func (m *Machine) OnResponseContentPartAdded(ResponseContentPartAdded) {}

func (m *Machine) OnResponseTextDelta(msg ResponseTextDelta) {
	m.log.AppendStreaming(msg.Delta)
}

func (m *Machine) OnResponseTextDone(ResponseTextDone) {
	turn, ok := m.log.FlushStreaming()
	if !ok {
		return
	}
	if m.onTurnDone != nil {
		m.onTurnDone(turn)
	}
}

func (m *Machine) OnResponseOutputItemDone(ResponseOutputItemDone) {}

func (m *Machine) OnResponseContentPartDone(ResponseContentPartDone) {}

func (m *Machine) OnResponseDone(ResponseDone) {}

func rawOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
