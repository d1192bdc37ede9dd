package events

import (
	"fmt"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/iob-boot/pkg/framework"
)

// TypeID masks
const (
	TypeIDMaskKind  uint32 = 0x80000000
	TypeIDMaskGroup uint32 = 0x7fff0000
	TypeIDMaskID    uint32 = 0x0000ffff
)

// TypeIDKindEvent marks event messages.
const TypeIDKindEvent uint32 = 0x80000000

// Message is an event which can be serialized over the wire.
type Message interface {
	fx.Message
	proto.Message
	TypeID() uint32
}

// MessageTypes are predefined mapping of type ID to messages.
var MessageTypes = map[uint32]Message{
	ConnectedTypeID:   (*Connected)(nil),
	FileServedTypeID:  (*FileServed)(nil),
	FileRefusedTypeID: (*FileRefused)(nil),
	FileEchoedTypeID:  (*FileEchoed)(nil),
	VerifiedTypeID:    (*Verified)(nil),
	HandoffTypeID:     (*Handoff)(nil),
	SessionEndTypeID:  (*SessionEnd)(nil),
}

// ErrUnknownType indicates unknown type id.
type ErrUnknownType struct {
	TypeID uint32
}

// Error implements error.
func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type: %x", e.TypeID)
}

// Typed wraps an event with its type and the session it belongs to.
type Typed struct {
	TypeId  uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Session string `protobuf:"bytes,2,opt,name=session,proto3" json:"session,omitempty"`
	Message []byte `protobuf:"bytes,3,opt,name=message,proto3" json:"message,omitempty"`
}

// ProtoMessage implements proto.Message.
func (p *Typed) ProtoMessage() {}

// Reset implements proto.Message.
func (p *Typed) Reset() { *p = Typed{} }

// String implements proto.Message.
func (p *Typed) String() string { return proto.CompactTextString(p) }

// TypedFrom wraps a message for a session.
func TypedFrom(session string, msg Message) (*Typed, error) {
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &Typed{TypeId: msg.TypeID(), Session: session, Message: data}, nil
}

// Decode decodes the wrapped message.
func (p *Typed) Decode() (Message, error) {
	msgType, ok := MessageTypes[p.TypeId]
	if !ok {
		return nil, &ErrUnknownType{TypeID: p.TypeId}
	}
	msg := msgType.NewMessage().(Message)
	if err := proto.Unmarshal(p.Message, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode encodes the Typed to bytes.
func (p *Typed) Encode() ([]byte, error) {
	return proto.Marshal(p)
}

// IsEvent determines if the message is an event.
func (p *Typed) IsEvent() bool {
	return p.TypeId&TypeIDMaskKind == TypeIDKindEvent
}

// DecodeTyped decodes bytes into Typed.
func DecodeTyped(data []byte) (*Typed, error) {
	var typed Typed
	if err := proto.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	return &typed, nil
}

// Publisher posts events of a session.
type Publisher interface {
	Publish(session string, msg Message) error
}

// PublishFunc is func form of Publisher.
type PublishFunc func(session string, msg Message) error

// Publish implements Publisher.
func (f PublishFunc) Publish(session string, msg Message) error {
	return f(session, msg)
}
