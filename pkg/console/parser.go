package console

import "github.com/robotalks/iob-boot/pkg/uart"

// ResultKind classifies a parse step.
type ResultKind int

// Parse result kinds.
const (
	// ResultNone means the byte was consumed inside a frame.
	ResultNone ResultKind = iota
	ResultText
	ResultEnquiry
	ResultEOT
	// ResultFileRequest is a device request to receive the named file.
	ResultFileRequest
	// ResultFileAck is the device accepting the announced size.
	ResultFileAck
	// ResultFileReceived carries a complete file sent by the device.
	ResultFileReceived
	// ResultFileTooLarge means the device announced a file above MaxFileSize.
	// The payload is dropped and the parser returns to text mode after it.
	ResultFileTooLarge
)

// ParseResult is the result of one parsing step.
type ParseResult struct {
	Kind ResultKind
	Byte byte
	Name string
	Data []byte
	Size uint32
	// Refused is set when the device sent this byte instead of acknowledging
	// a pending transfer.
	Refused bool
}

type parseState int

const (
	stateText     parseState = iota
	stateRecvName            // FRX seen, collecting requested name
	stateAck                 // size sent, waiting for ACK
	stateSendName            // FTX seen, collecting name
	stateSendSize            // collecting 4-byte little-endian size
	stateSendData            // collecting file data
	stateSkipData            // dropping the data of a file too large
)

const maxNameLen = 255

// Parser splits the device output into text and file protocol frames.
type Parser struct {
	// MaxFileSize limits files sent by the device, 0 for no limit.
	MaxFileSize uint32

	state   parseState
	name    []byte
	size    uint32
	sizeLen int
	data    []byte
	skip    uint32
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.name, p.data = stateText, nil, nil
}

// ExpectAck tells the parser a file size has been sent and the next byte
// decides whether the device takes the file.
func (p *Parser) ExpectAck() {
	p.state = stateAck
}

// InFrame indicates a frame is partially parsed.
func (p *Parser) InFrame() bool {
	return p.state != stateText
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	switch p.state {
	case stateAck:
		p.state = stateText
		if b == uart.ACK {
			pr.Kind = ResultFileAck
			return
		}
		pr = p.parseText(b)
		pr.Refused = true
	case stateRecvName:
		if b == 0 {
			pr.Kind, pr.Name = ResultFileRequest, string(p.name)
			p.state = stateText
			return
		}
		p.appendName(b)
	case stateSendName:
		if b == 0 {
			p.state, p.size, p.sizeLen = stateSendSize, 0, 0
			return
		}
		p.appendName(b)
	case stateSendSize:
		p.size |= uint32(b) << (8 * uint(p.sizeLen))
		if p.sizeLen++; p.sizeLen < 4 {
			return
		}
		if p.MaxFileSize > 0 && p.size > p.MaxFileSize {
			pr.Kind, pr.Name, pr.Size = ResultFileTooLarge, string(p.name), p.size
			p.state, p.skip = stateSkipData, p.size
			return
		}
		if p.size == 0 {
			return p.fileReceived()
		}
		p.data = make([]byte, 0, p.size)
		p.state = stateSendData
	case stateSkipData:
		if p.skip--; p.skip == 0 {
			p.state = stateText
		}
	case stateSendData:
		p.data = append(p.data, b)
		if uint32(len(p.data)) >= p.size {
			return p.fileReceived()
		}
	default:
		pr = p.parseText(b)
	}
	return
}

func (p *Parser) parseText(b byte) (pr ParseResult) {
	switch b {
	case uart.ENQ:
		pr.Kind = ResultEnquiry
	case uart.EOT:
		pr.Kind = ResultEOT
	case uart.FRX:
		p.state, p.name = stateRecvName, p.name[:0]
	case uart.FTX:
		p.state, p.name = stateSendName, p.name[:0]
	default:
		pr.Kind, pr.Byte = ResultText, b
	}
	return
}

// appendName drops back to text on names no device would send.
func (p *Parser) appendName(b byte) {
	if len(p.name) >= maxNameLen {
		p.state = stateText
		return
	}
	p.name = append(p.name, b)
}

func (p *Parser) fileReceived() (pr ParseResult) {
	pr.Kind, pr.Name, pr.Size = ResultFileReceived, string(p.name), p.size
	pr.Data, p.data = p.data, nil
	if pr.Data == nil {
		pr.Data = []byte{}
	}
	p.state = stateText
	return
}
