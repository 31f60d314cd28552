package analytics

import (
	"fmt"
	"strings"
	"time"
)

// DeviceClass distinguishes desktop terminals from constrained clients.
type DeviceClass int

const (
	DeviceDesktop DeviceClass = iota
	DeviceMobile
)

func (d DeviceClass) String() string {
	if d == DeviceMobile {
		return "mobile"
	}
	return "desktop"
}

// ParseDeviceClass accepts "desktop" or "mobile"; empty means desktop.
func ParseDeviceClass(value string) (DeviceClass, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "desktop":
		return DeviceDesktop, nil
	case "mobile":
		return DeviceMobile, nil
	default:
		return DeviceDesktop, fmt.Errorf("unknown device class %q", value)
	}
}

// NetworkClass buckets connection quality.
type NetworkClass int

const (
	NetworkNormal NetworkClass = iota
	NetworkSlow
)

func (n NetworkClass) String() string {
	if n == NetworkSlow {
		return "slow"
	}
	return "normal"
}

// ParseNetworkClass accepts an effective connection type ("slow-2g", "2g",
// "3g", "4g", "wifi") or a class name ("slow", "normal"). Empty means normal.
func ParseNetworkClass(value string) (NetworkClass, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "slow-2g", "2g", "3g", "slow":
		return NetworkSlow, nil
	case "", "4g", "5g", "wifi", "ethernet", "normal":
		return NetworkNormal, nil
	default:
		return NetworkNormal, fmt.Errorf("unknown network class %q", value)
	}
}

// Environment describes the client the coordinator runs on.
type Environment struct {
	Device  DeviceClass
	Network NetworkClass
}

func (e Environment) String() string {
	return e.Device.String() + "/" + e.Network.String()
}

// SlowMobile reports whether both constraints apply.
func (e Environment) SlowMobile() bool {
	return e.Device == DeviceMobile && e.Network == NetworkSlow
}

const (
	desktopFlushInterval    = 3 * time.Second
	mobileFlushInterval     = 15 * time.Second
	slowMobileFlushInterval = 20 * time.Second

	defaultSettleDelay    = 500 * time.Millisecond
	slowMobileSettleDelay = 2 * time.Second

	backpressureThreshold = 5
	backpressureKeep      = 3
)

// Policy is the flush and visibility behavior derived from an Environment.
type Policy struct {
	Env           Environment
	FlushInterval time.Duration
	SettleDelay   time.Duration
	ClearOnHidden bool
}

// PolicyFor computes the policy for env.
func PolicyFor(env Environment) Policy {
	p := Policy{
		Env:           env,
		FlushInterval: desktopFlushInterval,
		SettleDelay:   defaultSettleDelay,
	}
	if env.Device == DeviceMobile {
		p.FlushInterval = mobileFlushInterval
		p.ClearOnHidden = true
		if env.Network == NetworkSlow {
			p.FlushInterval = slowMobileFlushInterval
			p.SettleDelay = slowMobileSettleDelay
		}
	}
	return p
}

// Backpressure reports how many of the newest pending events to keep when a
// buffer of length pending must be trimmed before the next flush.
func (p Policy) Backpressure(pending int) (keep int, trim bool) {
	if !p.Env.SlowMobile() || pending <= backpressureThreshold {
		return pending, false
	}
	return backpressureKeep, true
}
