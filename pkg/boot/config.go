package boot

import (
	"flag"
	"fmt"
	"strings"
)

// MemoryTarget selects where the second-stage firmware executes from.
type MemoryTarget int

// Memory targets.
const (
	MemoryInternal MemoryTarget = iota
	MemoryExternal
)

// String implements flag.Value.
func (m MemoryTarget) String() string {
	switch m {
	case MemoryInternal:
		return "internal"
	case MemoryExternal:
		return "external"
	}
	return fmt.Sprintf("MemoryTarget(%d)", int(m))
}

// Set implements flag.Value.
func (m *MemoryTarget) Set(s string) error {
	switch strings.ToLower(s) {
	case "internal", "sram":
		*m = MemoryInternal
	case "external", "ddr", "extmem":
		*m = MemoryExternal
	default:
		return fmt.Errorf("unknown memory target %q", s)
	}
	return nil
}

// ImageSource selects how the destination region gets its contents.
type ImageSource int

// Image sources.
const (
	// ImageReceive receives the image over the link and echoes it back.
	ImageReceive ImageSource = iota
	// ImagePreloaded means the region was initialized before boot and
	// the receive/echo steps are skipped.
	ImagePreloaded
)

// String implements flag.Value.
func (s ImageSource) String() string {
	switch s {
	case ImageReceive:
		return "receive"
	case ImagePreloaded:
		return "preloaded"
	}
	return fmt.Sprintf("ImageSource(%d)", int(s))
}

// Set implements flag.Value.
func (s *ImageSource) Set(v string) error {
	switch strings.ToLower(v) {
	case "receive", "uart":
		*s = ImageReceive
	case "preloaded", "init", "initmem":
		*s = ImagePreloaded
	default:
		return fmt.Errorf("unknown image source %q", v)
	}
	return nil
}

// Config selects one of the loader variants. It is built once at startup
// and never changes during a session.
type Config struct {
	// ProgName prefixes every status line.
	ProgName string
	Memory   MemoryTarget
	Image    ImageSource

	// FirmwareAddr and FirmwareSize define the destination region.
	FirmwareAddr uint32
	FirmwareSize int

	// FirmwareName is the file requested from the host.
	FirmwareName string
	// EchoName is the file name the received image is echoed back under.
	EchoName string
}

// Defaults
const (
	DefaultProgName     = "IOb-Bootloader"
	DefaultFirmwareName = "iob_soc_firmware.bin"
	DefaultEchoName     = "s_fw.bin"
	DefaultFirmwareSize = 1 << 17
)

var defaultConfig = Config{
	ProgName:     DefaultProgName,
	Memory:       MemoryInternal,
	Image:        ImageReceive,
	FirmwareSize: DefaultFirmwareSize,
	FirmwareName: DefaultFirmwareName,
	EchoName:     DefaultEchoName,
}

type addrFlag struct {
	addr *uint32
}

func (f addrFlag) String() string {
	if f.addr == nil {
		return "0x00000000"
	}
	return fmt.Sprintf("0x%08X", *f.addr)
}

func (f addrFlag) Set(s string) error {
	var v uint64
	if _, err := fmt.Sscan(s, &v); err != nil {
		return fmt.Errorf("invalid address %q: %v", s, err)
	}
	if v >= 1<<32 {
		return fmt.Errorf("address %q out of 32-bit range", s)
	}
	*f.addr = uint32(v)
	return nil
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ProgName, "prog-name", defaultConfig.ProgName, "Name prefixing status messages.")
	flag.Var(&defaultConfig.Memory, "mem", "Firmware execution memory: internal or external.")
	flag.Var(&defaultConfig.Image, "image", "Image source: receive or preloaded.")
	flag.Var(addrFlag{&defaultConfig.FirmwareAddr}, "fw-addr", "Base address of the firmware region.")
	flag.IntVar(&defaultConfig.FirmwareSize, "fw-size", defaultConfig.FirmwareSize, "Capacity (bytes) of the firmware region.")
	flag.StringVar(&defaultConfig.FirmwareName, "fw-name", defaultConfig.FirmwareName, "File name requested from the host.")
	flag.StringVar(&defaultConfig.EchoName, "echo-name", defaultConfig.EchoName, "File name used to echo the firmware back.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the config is usable.
func (c *Config) Validate() error {
	if c.ProgName == "" {
		return &ConfigError{Field: "prog name", Reason: "must not be empty"}
	}
	if c.FirmwareSize <= 0 {
		return &ConfigError{Field: "firmware size", Reason: "must be positive"}
	}
	if uint64(c.FirmwareAddr)+uint64(c.FirmwareSize) > 1<<32 {
		return &ConfigError{Field: "firmware region", Reason: "exceeds the 32-bit address space"}
	}
	if c.Image == ImageReceive && (c.FirmwareName == "" || c.EchoName == "") {
		return &ConfigError{Field: "file names", Reason: "required when receiving an image"}
	}
	return nil
}

// NewRegion allocates the destination region described by the config.
func (c *Config) NewRegion() (*Region, error) {
	return NewRegion(c.FirmwareAddr, c.FirmwareSize)
}
