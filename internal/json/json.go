package json

import (
	gojson "encoding/json"

	"github.com/bytedance/sonic"
)

var (
	json = sonic.ConfigStd
	// Marshal 与 encoding/json.Marshal 行为一致。
	Marshal = json.Marshal
	// Unmarshal 与 encoding/json.Unmarshal 行为一致。
	Unmarshal = json.Unmarshal
	// MarshalIndent 与 encoding/json.MarshalIndent 行为一致。
	MarshalIndent = json.MarshalIndent
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
	Valid         = json.Valid
)

// RawMessage 延迟解码的原始 JSON 片段。
type RawMessage = gojson.RawMessage
