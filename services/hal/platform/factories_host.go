// services/hal/platform/factories_host.go
//go:build !rp2040 && !rp2350 && (!linux || (!arm && !arm64))

package platform

import (
	"loadswitch-go/services/hal/halcore"
)

// DefaultPinFactory provides fake pins on development hosts. Tests should
// construct their own HostPinFactory to inspect pin state.
func DefaultPinFactory() halcore.PinFactory {
	return NewHostPinFactory()
}
