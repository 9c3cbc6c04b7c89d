package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAct     = "ACT"
	TypeState   = "STATE"
	TypeReport  = "REPORT"
	TypeError   = "ERROR"
)

// Actions carried by ACT.
const (
	ActionBeginYear = "BEGIN_YEAR"
	ActionChoose    = "CHOOSE"
	ActionPlay      = "PLAY"
	ActionReport    = "REPORT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
