//go:build linux

package netops

import (
	"errors"

	"github.com/vishvananda/netlink"
)

func isLinkNotFound(err error) bool {
	var lnf netlink.LinkNotFoundError
	return errors.As(err, &lnf)
}
