package console

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/iob-boot/pkg/boot"
	"github.com/robotalks/iob-boot/pkg/events/mqtt"
	"github.com/robotalks/iob-boot/pkg/reset"
)

// Config defines the configurations of a console.
type Config struct {
	// LinkURL is the link to the device, see package link.
	LinkURL string
	// MQTTURL enables event publishing when set,
	// e.g. mqtt://host:1883/iob/
	MQTTURL string
	Session string

	FileDir string
	// Firmware overrides the file served as FirmwareName.
	Firmware     string
	FirmwareName string
	EchoName     string
	OutDir       string

	ResetFTDI     bool
	StopOnHandoff bool
	// MaxFileSize limits files from the device, at most math.MaxUint32.
	MaxFileSize uint64
}

// DefaultMaxFileSize limits files the device may send.
const DefaultMaxFileSize = 16 << 20

var defaultConfig = Config{
	LinkURL:      "tcp://localhost:2000",
	FileDir:      ".",
	FirmwareName: boot.DefaultFirmwareName,
	EchoName:     boot.DefaultEchoName,
	MaxFileSize:  DefaultMaxFileSize,
}

func init() {
	if val := os.Getenv("BOOT_LINK_URL"); val != "" {
		defaultConfig.LinkURL = val
	}
	if val := os.Getenv("BOOT_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("BOOT_SESSION"); val != "" {
		defaultConfig.Session = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.LinkURL, "link", defaultConfig.LinkURL, "Device link URL.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL for boot events, empty to disable.")
	flag.StringVar(&defaultConfig.Session, "session", defaultConfig.Session, "Session name in events, defaults to a machine ID.")
	flag.StringVar(&defaultConfig.FileDir, "dir", defaultConfig.FileDir, "Directory of files served to the device.")
	flag.StringVar(&defaultConfig.Firmware, "fw", defaultConfig.Firmware, "Firmware image (.bin or .hex) overriding the one in -dir.")
	flag.StringVar(&defaultConfig.FirmwareName, "fw-name", defaultConfig.FirmwareName, "File name the device requests.")
	flag.StringVar(&defaultConfig.EchoName, "echo-name", defaultConfig.EchoName, "File name the device echoes the firmware as.")
	flag.StringVar(&defaultConfig.OutDir, "out", defaultConfig.OutDir, "Directory to store files from the device, empty to discard.")
	flag.BoolVar(&defaultConfig.ResetFTDI, "reset-ftdi", defaultConfig.ResetFTDI, "Pulse FT2232H ADBUS7 on restart requests.")
	flag.BoolVar(&defaultConfig.StopOnHandoff, "stop", defaultConfig.StopOnHandoff, "Exit after the device hands off.")
	flag.Uint64Var(&defaultConfig.MaxFileSize, "max-file-size", defaultConfig.MaxFileSize, "Largest file accepted from the device.")
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

// DefaultSession derives a stable session name for this host.
func DefaultSession() string {
	id, err := machineid.ProtectedID("iob-boot")
	if err != nil {
		glog.V(1).Infof("console: machine id: %v", err)
		if host, herr := os.Hostname(); herr == nil {
			return host
		}
		return "local"
	}
	return id[:12]
}

// FileSource creates the source serving files to the device.
func (c *Config) FileSource() FileSource {
	var src FileSource = Dir(c.FileDir)
	if c.Firmware != "" {
		src = &Override{Name: c.FirmwareName, Path: c.Firmware, Next: src}
	}
	return src
}

// NewConsole creates a Console on link. The MQTT client and the FTDI
// device are opened here and released by Console.Close.
func (c *Config) NewConsole(link io.ReadWriter) (*Console, error) {
	if c.MaxFileSize > math.MaxUint32 {
		return nil, fmt.Errorf("max file size %d exceeds %d", c.MaxFileSize, uint64(math.MaxUint32))
	}
	con := New(link, c.FileSource())
	con.Session = c.Session
	if con.Session == "" {
		con.Session = DefaultSession()
	}
	con.OutDir = c.OutDir
	con.StopOnHandoff = c.StopOnHandoff
	con.MaxFileSize = uint32(c.MaxFileSize)
	con.Verify = map[string]string{c.EchoName: c.FirmwareName}

	if c.ResetFTDI {
		r, err := reset.OpenFTDI()
		if err != nil {
			return nil, fmt.Errorf("reset: %w", err)
		}
		con.Resetter = r
	}
	if c.MQTTURL != "" {
		q, err := mqtt.NewQueueFromURL(c.MQTTURL)
		if err != nil {
			return nil, fmt.Errorf("invalid MQTT URL: %w", err)
		}
		if err := q.Connect(); err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		con.Publisher = mqtt.NewPublisher(q)
		con.closers = append(con.closers, q)
	}
	return con, nil
}
