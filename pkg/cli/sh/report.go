package sh

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/robotalks/iob-boot/pkg/console"
	"github.com/robotalks/iob-boot/pkg/events"
)

// Summary is the printable form of a console.Report.
type Summary struct {
	Connected bool            `json:"connected"`
	Served    []string        `json:"served"`
	Refused   []string        `json:"refused"`
	Echoed    map[string]int  `json:"echoed"`
	Verified  map[string]bool `json:"verified"`
	Handoffs  int             `json:"handoffs"`
	Reason    string          `json:"reason"`
}

// Summarize builds a Summary, replacing echoed contents with their sizes.
func Summarize(r *console.Report) Summary {
	s := Summary{
		Connected: r.Connected,
		Served:    append([]string{}, r.Served...),
		Refused:   append([]string{}, r.Refused...),
		Echoed:    make(map[string]int, len(r.Echoed)),
		Verified:  make(map[string]bool, len(r.Verified)),
		Handoffs:  r.Handoffs,
		Reason:    r.Reason,
	}
	for name, data := range r.Echoed {
		s.Echoed[name] = len(data)
	}
	for name, ok := range r.Verified {
		s.Verified[name] = ok
	}
	return s
}

// String implements fmt.Stringer.
func (s Summary) String() string {
	var w bytes.Buffer
	if !s.Connected {
		fmt.Fprintf(&w, "not connected (%s)", s.Reason)
		return w.String()
	}
	fmt.Fprintf(&w, "connected, ended by %s", s.Reason)
	if len(s.Served) > 0 {
		fmt.Fprintf(&w, "\nserved: %s", strings.Join(s.Served, ", "))
	}
	if len(s.Refused) > 0 {
		fmt.Fprintf(&w, "\nrefused: %s", strings.Join(s.Refused, ", "))
	}
	for _, name := range sortedKeys(s.Echoed) {
		fmt.Fprintf(&w, "\necho %s: %d bytes", name, s.Echoed[name])
		if ok, checked := s.Verified[name]; checked {
			if ok {
				w.WriteString(", verified")
			} else {
				w.WriteString(", MISMATCH")
			}
		}
	}
	if s.Handoffs > 0 {
		fmt.Fprintf(&w, "\nhandoffs: %d", s.Handoffs)
	}
	return w.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Status describes the shell connection.
type Status struct {
	Link      string   `json:"link"`
	Connected bool     `json:"connected"`
	Last      *Summary `json:"last,omitempty"`
}

// String implements fmt.Stringer.
func (s Status) String() string {
	msg := "disconnected"
	if s.Connected {
		msg = "connected to " + s.Link
	}
	if s.Last != nil {
		msg += "\nlast session: " + s.Last.String()
	}
	return msg
}

// FirmwareInfo describes the image served to the device.
type FirmwareInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func firmwareInfo(conf *console.Config) FirmwareInfo {
	info := FirmwareInfo{Name: conf.FirmwareName, Path: conf.Firmware}
	if info.Path == "" {
		info.Path = conf.FileDir
	}
	return info
}

// String implements fmt.Stringer.
func (f FirmwareInfo) String() string {
	return fmt.Sprintf("%s from %s", f.Name, f.Path)
}

// reusable tells whether the link survives a session ending for reason.
func reusable(reason string) bool {
	return reason == events.ReasonEOT || reason == events.ReasonHandoff
}
