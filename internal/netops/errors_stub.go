//go:build !linux

package netops

func isLinkNotFound(err error) bool { return false }
