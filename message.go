package tickbridge

// Kind distinguishes the payload types a Message can carry.
type Kind uint8

const (
	// KindText is a UTF-8 text frame.
	KindText Kind = iota + 1
	// KindBinary is a binary frame.
	KindBinary
	// KindOther covers close and other frames. It is written to the socket as binary, using
	// its raw payload.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Message is a single WebSocket payload.
//
// Constructors copy their input so a Message never aliases caller memory.
type Message struct {
	Kind Kind
	Data []byte
}

// TextMessage builds a text message.
func TextMessage(s string) Message {
	return Message{Kind: KindText, Data: []byte(s)}
}

// BinaryMessage builds a binary message from a copy of b.
func BinaryMessage(b []byte) Message {
	return Message{Kind: KindBinary, Data: clone(b)}
}

// OtherMessage builds a message of KindOther from a copy of b.
func OtherMessage(b []byte) Message {
	return Message{Kind: KindOther, Data: clone(b)}
}

// IsText reports whether m is a text message.
func (m Message) IsText() bool {
	return m.Kind == KindText
}

// Text returns the payload as a string.
func (m Message) Text() string {
	return string(m.Data)
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
