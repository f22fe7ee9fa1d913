package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

// MessageType identifies control-channel payload variants.
type MessageType string

const (
	TypeSessionCreated           MessageType = "session.created"
	TypeSessionUpdated           MessageType = "session.updated"
	TypeConversationItemCreated  MessageType = "conversation.item.created"
	TypeResponseCreated          MessageType = "response.created"
	TypeRateLimitsUpdated        MessageType = "rate_limits.updated"
	TypeResponseOutputItemAdded  MessageType = "response.output_item.added"
	TypeResponseContentPartAdded MessageType = "response.content_part.added"
	TypeResponseTextDelta        MessageType = "response.text.delta"
	TypeResponseTextDone         MessageType = "response.text.done"
	TypeResponseOutputItemDone   MessageType = "response.output_item.done"
	TypeResponseContentPartDone  MessageType = "response.content_part.done"
	TypeResponseDone             MessageType = "response.done"

	TypeConversationItemCreate MessageType = "conversation.item.create"
	TypeResponseCreate         MessageType = "response.create"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrMissingType     = errors.New("missing message type")
)

// ServerMessage is the closed set of inbound control-channel messages.
// Only types in this package implement it.
type ServerMessage interface {
	MessageType() MessageType
	accept(h Handler)
}

// Handler receives each inbound variant. A new ServerMessage variant adds a
// method here, so every Handler implementation stops compiling until it
// handles the new type.
type Handler interface {
	OnSessionCreated(SessionCreated)
	OnSessionUpdated(SessionUpdated)
	OnConversationItemCreated(ConversationItemCreated)
	OnResponseCreated(ResponseCreated)
	OnRateLimitsUpdated(RateLimitsUpdated)
	OnResponseOutputItemAdded(ResponseOutputItemAdded)
	OnResponseContentPartAdded(ResponseContentPartAdded)
	OnResponseTextDelta(ResponseTextDelta)
	OnResponseTextDone(ResponseTextDone)
	OnResponseOutputItemDone(ResponseOutputItemDone)
	OnResponseContentPartDone(ResponseContentPartDone)
	OnResponseDone(ResponseDone)
}

// Dispatch routes msg to the matching Handler method.
func Dispatch(msg ServerMessage, h Handler) {
	msg.accept(h)
}

type Envelope struct {
	Type MessageType `json:"type"`
}

type SessionCreated struct {
	Type    MessageType     `json:"type"`
	EventID string          `json:"event_id,omitempty"`
	Session json.RawMessage `json:"session,omitempty"`
}

type SessionUpdated struct {
	Type    MessageType     `json:"type"`
	EventID string          `json:"event_id,omitempty"`
	Session json.RawMessage `json:"session,omitempty"`
}

type ConversationItemCreated struct {
	Type           MessageType     `json:"type"`
	EventID        string          `json:"event_id,omitempty"`
	PreviousItemID string          `json:"previous_item_id,omitempty"`
	Item           json.RawMessage `json:"item,omitempty"`
}

type ResponseCreated struct {
	Type     MessageType     `json:"type"`
	EventID  string          `json:"event_id,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type RateLimitsUpdated struct {
	Type       MessageType     `json:"type"`
	EventID    string          `json:"event_id,omitempty"`
	RateLimits json.RawMessage `json:"rate_limits,omitempty"`
}

type ResponseOutputItemAdded struct {
	Type        MessageType `json:"type"`
	EventID     string      `json:"event_id,omitempty"`
	ResponseID  string      `json:"response_id,omitempty"`
	OutputIndex int         `json:"output_index"`
}

type ResponseContentPartAdded struct {
	Type         MessageType `json:"type"`
	EventID      string      `json:"event_id,omitempty"`
	ResponseID   string      `json:"response_id,omitempty"`
	ItemID       string      `json:"item_id,omitempty"`
	ContentIndex int         `json:"content_index"`
}

type ResponseTextDelta struct {
	Type         MessageType `json:"type"`
	EventID      string      `json:"event_id,omitempty"`
	ResponseID   string      `json:"response_id,omitempty"`
	ItemID       string      `json:"item_id,omitempty"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Delta        string      `json:"delta"`
}

type ResponseTextDone struct {
	Type         MessageType `json:"type"`
	EventID      string      `json:"event_id,omitempty"`
	ResponseID   string      `json:"response_id,omitempty"`
	ItemID       string      `json:"item_id,omitempty"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Text         string      `json:"text,omitempty"`
}

type ResponseOutputItemDone struct {
	Type        MessageType `json:"type"`
	EventID     string      `json:"event_id,omitempty"`
	ResponseID  string      `json:"response_id,omitempty"`
	OutputIndex int         `json:"output_index"`
}

type ResponseContentPartDone struct {
	Type         MessageType `json:"type"`
	EventID      string      `json:"event_id,omitempty"`
	ResponseID   string      `json:"response_id,omitempty"`
	ItemID       string      `json:"item_id,omitempty"`
	ContentIndex int         `json:"content_index"`
}

type ResponseDone struct {
	Type     MessageType     `json:"type"`
	EventID  string          `json:"event_id,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

func (m SessionCreated) MessageType() MessageType           { return TypeSessionCreated }
func (m SessionUpdated) MessageType() MessageType           { return TypeSessionUpdated }
func (m ConversationItemCreated) MessageType() MessageType  { return TypeConversationItemCreated }
func (m ResponseCreated) MessageType() MessageType          { return TypeResponseCreated }
func (m RateLimitsUpdated) MessageType() MessageType        { return TypeRateLimitsUpdated }
func (m ResponseOutputItemAdded) MessageType() MessageType  { return TypeResponseOutputItemAdded }
func (m ResponseContentPartAdded) MessageType() MessageType { return TypeResponseContentPartAdded }
func (m ResponseTextDelta) MessageType() MessageType        { return TypeResponseTextDelta }
func (m ResponseTextDone) MessageType() MessageType         { return TypeResponseTextDone }
func (m ResponseOutputItemDone) MessageType() MessageType   { return TypeResponseOutputItemDone }
func (m ResponseContentPartDone) MessageType() MessageType  { return TypeResponseContentPartDone }
func (m ResponseDone) MessageType() MessageType             { return TypeResponseDone }

func (m SessionCreated) accept(h Handler)           { h.OnSessionCreated(m) }
func (m SessionUpdated) accept(h Handler)           { h.OnSessionUpdated(m) }
func (m ConversationItemCreated) accept(h Handler)  { h.OnConversationItemCreated(m) }
func (m ResponseCreated) accept(h Handler)          { h.OnResponseCreated(m) }
func (m RateLimitsUpdated) accept(h Handler)        { h.OnRateLimitsUpdated(m) }
func (m ResponseOutputItemAdded) accept(h Handler)  { h.OnResponseOutputItemAdded(m) }
func (m ResponseContentPartAdded) accept(h Handler) { h.OnResponseContentPartAdded(m) }
func (m ResponseTextDelta) accept(h Handler)        { h.OnResponseTextDelta(m) }
func (m ResponseTextDone) accept(h Handler)         { h.OnResponseTextDone(m) }
func (m ResponseOutputItemDone) accept(h Handler)   { h.OnResponseOutputItemDone(m) }
func (m ResponseContentPartDone) accept(h Handler)  { h.OnResponseContentPartDone(m) }
func (m ResponseDone) accept(h Handler)             { h.OnResponseDone(m) }

var decoders = map[MessageType]func([]byte) (ServerMessage, error){
	TypeSessionCreated:           decodeAs[SessionCreated],
	TypeSessionUpdated:           decodeAs[SessionUpdated],
	TypeConversationItemCreated:  decodeAs[ConversationItemCreated],
	TypeResponseCreated:          decodeAs[ResponseCreated],
	TypeRateLimitsUpdated:        decodeAs[RateLimitsUpdated],
	TypeResponseOutputItemAdded:  decodeAs[ResponseOutputItemAdded],
	TypeResponseContentPartAdded: decodeAs[ResponseContentPartAdded],
	TypeResponseTextDelta:        decodeTextDelta,
	TypeResponseTextDone:         decodeAs[ResponseTextDone],
	TypeResponseOutputItemDone:   decodeAs[ResponseOutputItemDone],
	TypeResponseContentPartDone:  decodeAs[ResponseContentPartDone],
	TypeResponseDone:             decodeAs[ResponseDone],
}

// ParseServerMessage validates raw against its variant's shape. Any failure
// is a ValidationError and yields no message.
func ParseServerMessage(raw []byte) (ServerMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, voiceerr.Validation("parse", errors.New("message is not a JSON object"))
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, voiceerr.Validation("parse", fmt.Errorf("invalid envelope: %w", err))
	}
	if env.Type == "" {
		return nil, voiceerr.Validation("parse", ErrMissingType)
	}

	decode, ok := decoders[env.Type]
	if !ok {
		return nil, voiceerr.Validation("parse", fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type))
	}
	msg, err := decode(trimmed)
	if err != nil {
		return nil, voiceerr.Validation("parse", fmt.Errorf("invalid %s: %w", env.Type, err))
	}
	return msg, nil
}

func decodeAs[T ServerMessage](raw []byte) (ServerMessage, error) {
	var msg T
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeTextDelta(raw []byte) (ServerMessage, error) {
	var aux struct {
		ResponseTextDelta
		Delta *string `json:"delta"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, err
	}
	if aux.Delta == nil {
		return nil, errors.New("delta is required")
	}
	msg := aux.ResponseTextDelta
	msg.Delta = *aux.Delta
	return msg, nil
}
