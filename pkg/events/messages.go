// Package events defines the boot session events published by the host
// console and their wire encoding.
package events

import (
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/iob-boot/pkg/framework"
)

// Connected is posted when the console acknowledges the device announcement.
type Connected struct {
	Timestamp int64 `protobuf:"varint,1,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// NewMessage implements Message.
func (m *Connected) NewMessage() fx.Message { return &Connected{} }

// TypeID implements Message.
func (m *Connected) TypeID() uint32 { return ConnectedTypeID }

// ProtoMessage implements proto.Message.
func (m *Connected) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Connected) Reset() { *m = Connected{} }

// String implements proto.Message.
func (m *Connected) String() string { return proto.CompactTextString(m) }

// FileServed is posted after a requested file has been sent to the device.
type FileServed struct {
	Name string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Size uint32 `protobuf:"varint,2,opt,name=size,proto3" json:"size,omitempty"`
}

// NewMessage implements Message.
func (m *FileServed) NewMessage() fx.Message { return &FileServed{} }

// TypeID implements Message.
func (m *FileServed) TypeID() uint32 { return FileServedTypeID }

// ProtoMessage implements proto.Message.
func (m *FileServed) ProtoMessage() {}

// Reset implements proto.Message.
func (m *FileServed) Reset() { *m = FileServed{} }

// String implements proto.Message.
func (m *FileServed) String() string { return proto.CompactTextString(m) }

// FileRefused is posted when the device declines a file after seeing its size.
type FileRefused struct {
	Name string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Size uint32 `protobuf:"varint,2,opt,name=size,proto3" json:"size,omitempty"`
}

// NewMessage implements Message.
func (m *FileRefused) NewMessage() fx.Message { return &FileRefused{} }

// TypeID implements Message.
func (m *FileRefused) TypeID() uint32 { return FileRefusedTypeID }

// ProtoMessage implements proto.Message.
func (m *FileRefused) ProtoMessage() {}

// Reset implements proto.Message.
func (m *FileRefused) Reset() { *m = FileRefused{} }

// String implements proto.Message.
func (m *FileRefused) String() string { return proto.CompactTextString(m) }

// FileEchoed is posted when the device sent a file back.
type FileEchoed struct {
	Name string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Size uint32 `protobuf:"varint,2,opt,name=size,proto3" json:"size,omitempty"`
	// Path is where the console stored the file, empty if not stored.
	Path string `protobuf:"bytes,3,opt,name=path,proto3" json:"path,omitempty"`
}

// NewMessage implements Message.
func (m *FileEchoed) NewMessage() fx.Message { return &FileEchoed{} }

// TypeID implements Message.
func (m *FileEchoed) TypeID() uint32 { return FileEchoedTypeID }

// ProtoMessage implements proto.Message.
func (m *FileEchoed) ProtoMessage() {}

// Reset implements proto.Message.
func (m *FileEchoed) Reset() { *m = FileEchoed{} }

// String implements proto.Message.
func (m *FileEchoed) String() string { return proto.CompactTextString(m) }

// Verified reports the comparison of an echoed file with its source.
type Verified struct {
	Name   string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Source string `protobuf:"bytes,2,opt,name=source,proto3" json:"source,omitempty"`
	Match  bool   `protobuf:"varint,3,opt,name=match,proto3" json:"match,omitempty"`
}

// NewMessage implements Message.
func (m *Verified) NewMessage() fx.Message { return &Verified{} }

// TypeID implements Message.
func (m *Verified) TypeID() uint32 { return VerifiedTypeID }

// ProtoMessage implements proto.Message.
func (m *Verified) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Verified) Reset() { *m = Verified{} }

// String implements proto.Message.
func (m *Verified) String() string { return proto.CompactTextString(m) }

// Handoff is posted when the device asks to be restarted into the firmware.
type Handoff struct {
	Line string `protobuf:"bytes,1,opt,name=line,proto3" json:"line,omitempty"`
	// Restarted indicates the console pulsed the reset line.
	Restarted bool `protobuf:"varint,2,opt,name=restarted,proto3" json:"restarted,omitempty"`
}

// NewMessage implements Message.
func (m *Handoff) NewMessage() fx.Message { return &Handoff{} }

// TypeID implements Message.
func (m *Handoff) TypeID() uint32 { return HandoffTypeID }

// ProtoMessage implements proto.Message.
func (m *Handoff) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Handoff) Reset() { *m = Handoff{} }

// String implements proto.Message.
func (m *Handoff) String() string { return proto.CompactTextString(m) }

// SessionEnd is the last event of a console session.
type SessionEnd struct {
	Reason string `protobuf:"bytes,1,opt,name=reason,proto3" json:"reason,omitempty"`
}

// NewMessage implements Message.
func (m *SessionEnd) NewMessage() fx.Message { return &SessionEnd{} }

// TypeID implements Message.
func (m *SessionEnd) TypeID() uint32 { return SessionEndTypeID }

// ProtoMessage implements proto.Message.
func (m *SessionEnd) ProtoMessage() {}

// Reset implements proto.Message.
func (m *SessionEnd) Reset() { *m = SessionEnd{} }

// String implements proto.Message.
func (m *SessionEnd) String() string { return proto.CompactTextString(m) }

// GroupBoot is the type group of boot session events.
const GroupBoot uint32 = TypeIDKindEvent | 0x00010000

// TypeIDs
const (
	ConnectedTypeID   uint32 = GroupBoot | 0x0000
	FileServedTypeID  uint32 = GroupBoot | 0x0001
	FileRefusedTypeID uint32 = GroupBoot | 0x0002
	FileEchoedTypeID  uint32 = GroupBoot | 0x0003
	VerifiedTypeID    uint32 = GroupBoot | 0x0004
	HandoffTypeID     uint32 = GroupBoot | 0x0005
	SessionEndTypeID  uint32 = GroupBoot | 0x0006
)

// SessionEnd reasons.
const (
	ReasonEOT      = "eot"
	ReasonHandoff  = "handoff"
	ReasonCanceled = "canceled"
	ReasonLinkDown = "link down"
)
