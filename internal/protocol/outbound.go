package protocol

import (
	"encoding/json"
	"fmt"
)

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ConversationItemCreate struct {
	Type MessageType      `json:"type"`
	Item ConversationItem `json:"item"`
}

type ResponseCreate struct {
	Type MessageType `json:"type"`
}

func NewUserText(text string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: TypeResponseCreate}
}

// UserTurnFrames encodes the item-create + response-create pair that asks
// the endpoint to answer a typed user message.
func UserTurnFrames(text string) ([][]byte, error) {
	item, err := json.Marshal(NewUserText(text))
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", TypeConversationItemCreate, err)
	}
	resp, err := json.Marshal(NewResponseCreate())
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", TypeResponseCreate, err)
	}
	return [][]byte{item, resp}, nil
}
