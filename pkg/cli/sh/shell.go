package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/iob-boot/pkg/console"
	"github.com/robotalks/iob-boot/pkg/link"
	"github.com/robotalks/iob-boot/pkg/reset"
)

// Shell provides ishell backed interactive console.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *console.Config
	Conn   link.Conn
	URL    string
	// Stream reads Conn for every session on it.
	Stream *console.Stream
	// Last is the report of the latest boot session.
	Last *console.Report
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "

	// DialTimeout limits connecting to the device link.
	DialTimeout = 10 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&FirmwareCmd,
		&BootCmd,
		&StatusCmd,
		&ResetCmd,
		&TermCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *console.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens the device link at url, replacing the current one.
func (s *Shell) Connect(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()
	conn, err := link.Dial(ctx, url)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Conn, s.URL = conn, url
	s.Stream = console.NewStream(conn)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Disconnect closes current link.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Stream.Close()
		if err := s.Conn.Close(); err != nil {
			glog.V(1).Infof("sh: close %s: %v", s.URL, err)
		}
		s.Conn, s.URL, s.Stream = nil, "", nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Boot runs one console session on the current link, forwarding input to
// the firmware when not nil. A session ending in anything but EOT or
// handoff leaves the shell disconnected.
func (s *Shell) Boot(ctx context.Context, conf *console.Config, input io.Reader) (*console.Report, error) {
	con, err := conf.NewConsole(s.Conn)
	if err != nil {
		return nil, err
	}
	defer con.Close()
	con.Stream = s.Stream
	if input != nil {
		con.Input = input
	}
	report, err := con.Run(ctx)
	if report != nil {
		s.Last = report
		if !reusable(report.Reason) {
			s.Disconnect()
		}
	}
	return report, err
}

// Print writes v as JSON when OutputJSON, or its text form otherwise.
func (s *Shell) Print(c *ishell.Context, v fmt.Stringer) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(v.String())
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.LinkURL != "" && (len(args) == 0 || args[0] != "connect") {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.LinkURL)
		}
		if err := s.Connect(s.Config.LinkURL); err != nil {
			if !s.Interactive {
				log.Fatalf("connect %q failed: %v", s.Config.LinkURL, err)
			}
			s.Shell.Printf("connect %q failed: %v\n", s.Config.LinkURL, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ConnectCmd connects the device link.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			url := s.Config.LinkURL
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			if url == "" {
				c.Err(fmt.Errorf("link URL required"))
				return
			}
			if err := s.Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// FirmwareCmd shows or sets the firmware image served to the device.
	FirmwareCmd = ishell.Cmd{
		Name:    "firmware",
		Aliases: []string{"fw"},
		Help:    "[PATH]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				if _, err := console.ReadImage(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
				s.Config.Firmware = c.Args[0]
			}
			s.Print(c, firmwareInfo(s.Config))
		},
	}

	// BootCmd serves the device until it hands off.
	BootCmd = ishell.Cmd{
		Name:    "boot",
		Aliases: []string{"b"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			conf := *s.Config
			conf.StopOnHandoff = true
			report, err := s.Boot(context.Background(), &conf, nil)
			if err != nil {
				c.Err(err)
			}
			if report != nil {
				s.Print(c, Summarize(report))
			}
		}),
	}

	// StatusCmd prints the link and the last session.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			st := Status{Link: s.URL, Connected: s.Conn != nil}
			if s.Last != nil {
				sum := Summarize(s.Last)
				st.Last = &sum
			}
			s.Print(c, st)
		},
	}

	// ResetCmd pulses the FTDI reset line.
	ResetCmd = ishell.Cmd{
		Name:    "reset",
		Aliases: []string{"r"},
		Help:    "",
		Func: func(c *ishell.Context) {
			pin, err := reset.OpenFTDI()
			if err != nil {
				c.Err(err)
				return
			}
			if err := pin.Reset(context.Background()); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}

	// TermCmd boots the device and then forwards the keyboard to the
	// running firmware until Ctrl-] is pressed.
	TermCmd = ishell.Cmd{
		Name:    "term",
		Aliases: []string{"t"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			if !s.Interactive {
				c.Err(fmt.Errorf("term requires an interactive shell"))
				return
			}
			restore, err := rawStdin()
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			conf := *s.Config
			conf.StopOnHandoff = false
			c.Println("Escape with Ctrl-]")
			input := pumpInput(os.Stdin, EscapeKey, cancel)
			report, err := s.Boot(ctx, &conf, input)
			if !input.Stopped() {
				c.Println("\r\nSession ended, press Ctrl-] to return")
				<-input.Done()
			}
			restore()
			if err != nil && err != context.Canceled {
				c.Err(err)
			}
			if report != nil {
				s.Print(c, Summarize(report))
			}
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	defer glog.Flush()
	New(console.Default()).WithAutoConnect(true).Run(flag.Args()...)
}
