//go:build !linux

package netops

import (
	"errors"

	"grimm.is/vpcsim/internal/logging"
)

// New returns an error on non-Linux platforms: the simulator depends on
// network namespaces, bridges and nftables, which only exist on Linux.
func New(logger *logging.Logger, namer Namer) (Adapter, error) {
	return nil, errors.New("kernel network operations are only supported on linux")
}
