package presence

import (
	"github.com/fxamacker/cbor/v2"
)

type MessageKind uint8

const (
	KindCursor MessageKind = iota + 1
	KindSelection
)

// Message is the presence wire format. Messages may arrive via the redis
// awareness channel, the direct in-process path, or both; receivers apply
// them idempotently keyed by (ClientID, Seq).
type Message struct {
	Kind     MessageKind `cbor:"1,keyasint"`
	ClientID string      `cbor:"2,keyasint"`
	UserID   uint64      `cbor:"3,keyasint"`
	Name     string      `cbor:"4,keyasint,omitempty"`
	Color    string      `cbor:"5,keyasint,omitempty"`
	Seq      uint64      `cbor:"6,keyasint"`

	// cursor fields
	Pos  Point   `cbor:"7,keyasint,omitempty"`
	Zoom float64 `cbor:"8,keyasint,omitempty"`

	// selection fields, scoped to the active slide
	SlideID      string   `cbor:"9,keyasint,omitempty"`
	ComponentIDs []string `cbor:"10,keyasint,omitempty"`
}

// EncodeMessage serializes a presence message. CBOR keeps the 60Hz cursor
// traffic compact.
func EncodeMessage(m Message) ([]byte, error) {
	return cbor.Marshal(m)
}

func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	err := cbor.Unmarshal(raw, &m)
	return m, err
}
