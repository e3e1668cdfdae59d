//go:build !windows

package eventbus

import (
	"fmt"
	"net"
)

func listenPipe(addr string) (net.Listener, error) {
	return nil, fmt.Errorf("named pipes are supported only on Windows (requested %s)", addr)
}
