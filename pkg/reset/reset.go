// Package reset restarts a board so it runs the firmware left in memory by
// the boot loader.
package reset

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Resetter restarts the CPU of a board.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Func is func form of Resetter.
type Func func(ctx context.Context) error

// Reset implements Resetter.
func (f Func) Reset(ctx context.Context) error {
	return f(ctx)
}

// DefaultPulse is how long the reset line is held asserted.
const DefaultPulse = 10 * time.Millisecond

// Pin resets by pulling an active-low reset line.
type Pin struct {
	Line  gpio.PinOut
	Pulse time.Duration
}

// Reset implements Resetter.
func (p *Pin) Reset(ctx context.Context) error {
	pulse := p.Pulse
	if pulse <= 0 {
		pulse = DefaultPulse
	}
	glog.V(1).Infof("reset: pulse %s for %s", p.Line, pulse)
	if err := p.Line.Out(gpio.Low); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	timer := time.NewTimer(pulse)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	// the line is always released, even when canceled.
	if err := p.Line.Out(gpio.High); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	return ctx.Err()
}

// FT2232H identifiers.
const (
	FTDIVendorID  = 0x0403
	FT2232HDevID  = 0x6010
	resetLineName = "ADBUS7"
)

var (
	// ErrNoFTDI indicates no FT2232H is attached.
	ErrNoFTDI = errors.New("FT2232H not found")

	hostInitialized atomic.Bool
)

// OpenFTDI finds the first FT2232H and returns a Resetter driving its
// ADBUS7 line, wired to CRESET on the usual FPGA boards.
func OpenFTDI() (*Pin, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			hostInitialized.Store(false)
			return nil, fmt.Errorf("host init: %w", err)
		}
	}
	var info ftdi.Info
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != FTDIVendorID || info.DevID != FT2232HDevID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			glog.V(1).Infof("reset: using %s %s", ft, resetLineName)
			return &Pin{Line: ft.D7}, nil
		}
	}
	return nil, ErrNoFTDI
}
