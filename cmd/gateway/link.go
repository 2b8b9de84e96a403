package main

import (
	"io"
	"net"
	"os"
	"strings"
	"time"
)

// dialLink opens the node link. "tcp:host:port" dials a socket (useful with
// a serial-over-TCP shim or an emulated node); anything else is treated as a
// serial device file that must already be configured for raw mode.
func dialLink(spec string) (io.ReadWriteCloser, error) {
	if addr, ok := strings.CutPrefix(spec, "tcp:"); ok {
		return net.DialTimeout("tcp", addr, 5*time.Second)
	}
	return os.OpenFile(spec, os.O_RDWR, 0)
}
