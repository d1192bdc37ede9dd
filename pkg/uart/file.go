package uart

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/iob-boot/pkg/boot"
)

// Messages printed by the file primitives, prefixed with ProgName.
const (
	MsgRequestRecv = ": requesting to receive file\n"
	MsgFileRecv    = ": file received\n"
	MsgRequestSend = ": requesting to send file\n"
	MsgFileSent    = ": file sent\n"
)

var _ boot.Transport = (*Port)(nil)

func (p *Port) putName(ctl byte, name string) error {
	if err := p.PutByte(ctl); err != nil {
		return err
	}
	if err := p.Puts(name); err != nil {
		return err
	}
	return p.PutByte(0)
}

func (p *Port) getUint32() (uint32, error) {
	var b [4]byte
	for i := range b {
		c, err := p.GetByte()
		if err != nil {
			return 0, err
		}
		b[i] = c
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// RecvFile requests the file name from the host and receives it into dst.
// A file larger than dst is refused before any data is acknowledged and
// reported as *boot.OverflowError; dst is never written past its length.
func (p *Port) RecvFile(name string, dst []byte) (int, error) {
	if err := p.Puts(p.ProgName + MsgRequestRecv); err != nil {
		return 0, err
	}
	if err := p.putName(FRX, name); err != nil {
		return 0, err
	}
	size, err := p.getUint32()
	if err != nil {
		return 0, fmt.Errorf("read size: %w", err)
	}
	if uint64(size) > uint64(len(dst)) {
		glog.Warningf("uart: refusing %s: %d bytes, capacity %d", name, size, len(dst))
		return 0, &boot.OverflowError{Size: int(size), Capacity: len(dst)}
	}
	if err := p.PutByte(ACK); err != nil {
		return 0, err
	}
	for i := 0; i < int(size); i++ {
		if dst[i], err = p.GetByte(); err != nil {
			return i, fmt.Errorf("read data: %w", err)
		}
	}
	glog.V(2).Infof("uart: received %s (%d bytes)", name, size)
	if err := p.Puts(p.ProgName + MsgFileRecv); err != nil {
		return int(size), err
	}
	return int(size), nil
}

// SendFile sends src to the host under name.
func (p *Port) SendFile(name string, src []byte) error {
	if err := p.Puts(p.ProgName + MsgRequestSend); err != nil {
		return err
	}
	if err := p.putName(FTX, name); err != nil {
		return err
	}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(src)))
	if _, err := p.Write(size[:]); err != nil {
		return err
	}
	if _, err := p.Write(src); err != nil {
		return err
	}
	glog.V(2).Infof("uart: sent %s (%d bytes)", name, len(src))
	return p.Puts(p.ProgName + MsgFileSent)
}

// Finish tells the host console to exit and drains output.
func (p *Port) Finish() error {
	if err := p.PutByte(EOT); err != nil {
		return err
	}
	return p.TxWait()
}
