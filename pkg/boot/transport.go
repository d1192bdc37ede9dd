package boot

// Sentinel bytes used by the handshake.
const (
	// ENQ is sent repeatedly to announce the loader until the host responds.
	ENQ byte = 0x05
	// ACK is the byte the host must send to release the acknowledgement gate.
	ACK byte = 0x06
)

// Transport is the serial-driver collaborator the loader runs on.
// All methods may block indefinitely.
type Transport interface {
	// PutByte sends a single byte.
	PutByte(b byte) error
	// GetByte blocks until a byte is received.
	GetByte() (byte, error)
	// TxReady reports whether PutByte can accept a byte without waiting.
	TxReady() bool
	// RxReady reports whether a received byte is available.
	RxReady() bool
	// Puts sends a text string on the same channel as binary data.
	Puts(s string) error
	// RecvFile asks the host for the named file and writes it sequentially
	// into dst. It never writes beyond len(dst); an announced size larger
	// than len(dst) must be reported as *OverflowError.
	RecvFile(name string, dst []byte) (int, error)
	// SendFile sends src to the host under the given name.
	SendFile(name string, src []byte) error
	// TxWait blocks until all pending output has left the transmitter.
	TxWait() error
}
