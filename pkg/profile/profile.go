// Package profile loads device simulator settings from Pkl modules
// amending profiles/Profile.pkl.
package profile

import (
	"context"

	"github.com/apple/pkl-go/pkl"

	"github.com/robotalks/iob-boot/pkg/boot"
)

// Profile mirrors the Profile Pkl module.
type Profile struct {
	ProgName     string  `pkl:"progName"`
	Memory       string  `pkl:"memory"`
	Image        string  `pkl:"image"`
	FirmwareAddr *uint32 `pkl:"firmwareAddr"`
	FirmwareSize int     `pkl:"firmwareSize"`
	FirmwareName string  `pkl:"firmwareName"`
	EchoName     string  `pkl:"echoName"`
	Link         *string `pkl:"link"`
}

// LoadFromPath evaluates the Pkl module at path.
func LoadFromPath(ctx context.Context, path string) (ret *Profile, err error) {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		cerr := evaluator.Close()
		if err == nil {
			err = cerr
		}
	}()
	return Load(ctx, evaluator, pkl.FileSource(path))
}

// Load evaluates source with evaluator.
func Load(ctx context.Context, evaluator pkl.Evaluator, source *pkl.ModuleSource) (*Profile, error) {
	var ret Profile
	if err := evaluator.EvaluateModule(ctx, source, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// Apply copies the profile onto conf. Empty strings, a zero size and an
// unset address keep the values already in conf.
func (p *Profile) Apply(conf *boot.Config) error {
	if p.ProgName != "" {
		conf.ProgName = p.ProgName
	}
	if p.Memory != "" {
		if err := conf.Memory.Set(p.Memory); err != nil {
			return err
		}
	}
	if p.Image != "" {
		if err := conf.Image.Set(p.Image); err != nil {
			return err
		}
	}
	if p.FirmwareAddr != nil {
		conf.FirmwareAddr = *p.FirmwareAddr
	}
	if p.FirmwareSize != 0 {
		conf.FirmwareSize = p.FirmwareSize
	}
	if p.FirmwareName != "" {
		conf.FirmwareName = p.FirmwareName
	}
	if p.EchoName != "" {
		conf.EchoName = p.EchoName
	}
	return conf.Validate()
}

// LinkURL returns the link URL or def when unset.
func (p *Profile) LinkURL(def string) string {
	if p.Link != nil && *p.Link != "" {
		return *p.Link
	}
	return def
}
