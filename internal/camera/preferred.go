package camera

import (
	"context"
	"strings"
)

// Oriented is implemented by devices that know which way they face.
type Oriented interface {
	FacingMode() Facing
}

// Preferred picks, per acquisition, the first device facing the requested
// way, falling back to the first device. Facing is a preference, never a
// requirement.
type Preferred struct {
	devices []Device
}

// NewPreferred returns a Preferred over devices, in priority order.
func NewPreferred(devices ...Device) *Preferred {
	return &Preferred{devices: devices}
}

func (p *Preferred) Name() string {
	names := make([]string, len(p.devices))
	for i, d := range p.devices {
		names[i] = d.Name()
	}
	return strings.Join(names, ",")
}

// Pick returns the device Acquire would use for c.
func (p *Preferred) Pick(c Constraints) Device {
	if len(p.devices) == 0 {
		return nil
	}
	if c.Facing != FacingAny {
		for _, d := range p.devices {
			if o, ok := d.(Oriented); ok && o.FacingMode() == c.Facing {
				return d
			}
		}
	}
	return p.devices[0]
}

func (p *Preferred) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	d := p.Pick(c)
	if d == nil {
		return nil, &AcquireError{Cause: CauseNotFound}
	}
	return d.Acquire(ctx, c)
}
