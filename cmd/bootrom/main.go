package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/iob-boot/pkg/boot"
	"github.com/robotalks/iob-boot/pkg/console"
	fx "github.com/robotalks/iob-boot/pkg/framework"
	"github.com/robotalks/iob-boot/pkg/link"
	"github.com/robotalks/iob-boot/pkg/profile"
	"github.com/robotalks/iob-boot/pkg/uart"
)

//go-build: CGO_ENABLED=0

var (
	listenURL   = "tcp://:2000"
	profilePath string
	initImage   string
	dumpPath    string
	fifoDepth   = uart.DefaultDepth
	restart     bool
	finish      bool
)

func init() {
	if val := os.Getenv("BOOT_LINK_URL"); val != "" {
		listenURL = val
	}
	boot.SetupFlags()
	flag.StringVar(&listenURL, "link", listenURL, "Listen URL (tcp or ws) for the console.")
	flag.StringVar(&profilePath, "profile", profilePath, "Pkl profile overriding the boot flags.")
	flag.StringVar(&initImage, "init", initImage, "Image (.bin or .hex) preloaded into the region with -image=preloaded.")
	flag.StringVar(&dumpPath, "dump", dumpPath, "Write the region contents here after each session.")
	flag.IntVar(&fifoDepth, "fifo", fifoDepth, "UART FIFO depth.")
	flag.BoolVar(&restart, "restart", restart, "Wait for the next console after handoff.")
	flag.BoolVar(&finish, "finish", finish, "Send EOT after handoff so the console exits.")
}

type device struct {
	conf boot.Config
	url  string
}

func (d *device) Run(ctx context.Context) error {
	for {
		if err := d.session(ctx); err != nil {
			return err
		}
		if !restart {
			return nil
		}
		glog.Info("bootrom: restarting")
	}
}

func (d *device) session(ctx context.Context) error {
	conn, err := link.Listen(ctx, d.url)
	if err != nil {
		return err
	}
	port := uart.NewPort(conn, fifoDepth)
	loader, err := boot.NewLoader(port, d.conf)
	if err != nil {
		port.Close()
		return err
	}
	loader.Notifier = boot.StateChangedFunc(func(s boot.State) {
		glog.V(1).Infof("bootrom: %s", s)
	})
	if d.conf.Image == boot.ImagePreloaded && initImage != "" {
		image, err := console.ReadImage(initImage)
		if err != nil {
			port.Close()
			return err
		}
		if err := loader.Region.Load(image); err != nil {
			port.Close()
			return fmt.Errorf("%s: %w", initImage, err)
		}
	}

	var res *boot.Result
	err = fx.RunWithContextCloser(ctx, port, func() (err error) {
		if res, err = loader.Run(); err == nil && finish {
			err = port.Finish()
		}
		return
	})
	if err != nil {
		return err
	}
	glog.Infof("bootrom: %s, %d bytes loaded into %s", res.State, res.FileSize, loader.Region)
	if res.LoadErr != nil {
		glog.Warningf("bootrom: %v", res.LoadErr)
	}
	if dumpPath != "" {
		if err := os.WriteFile(dumpPath, loader.Region.Bytes(), 0644); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(ctx context.Context) (*device, error) {
	d := &device{conf: *boot.Default(), url: listenURL}
	if profilePath == "" {
		return d, d.conf.Validate()
	}
	p, err := profile.LoadFromPath(ctx, profilePath)
	if err != nil {
		return nil, err
	}
	if err := p.Apply(&d.conf); err != nil {
		return nil, err
	}
	d.url = p.LinkURL(d.url)
	return d, nil
}

func main() {
	flag.Parse()
	defer glog.Flush()

	runner := fx.NewRunner().HandleSignals()
	dev, err := loadConfig(runner.Context)
	if err != nil {
		glog.Exitf("bootrom: %v", err)
	}
	if err := runner.Go(fx.NamedRun("bootrom", dev)).Wait(); err != nil {
		glog.Exitf("bootrom: %v", err)
	}
}
