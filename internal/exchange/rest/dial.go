package rest

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// NewDialer returns a TCP dialer bound to sourceAddr, or to the OS default when it is empty.
// REST and websocket connections share it so both leave from the same address.
func NewDialer(sourceAddr string, timeout time.Duration) (*net.Dialer, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if addr := strings.TrimSpace(sourceAddr); addr != "" {
		ip := net.ParseIP(addr)
		if ip == nil {
			return nil, fmt.Errorf("invalid source address %q", addr)
		}
		d.LocalAddr = &net.TCPAddr{IP: ip}
	}
	return d, nil
}

// TLSConfig is nil, meaning the default verified config, unless insecure is set.
func TLSConfig(insecure bool, log *logrus.Entry) *tls.Config {
	if !insecure {
		return nil
	}
	if log != nil {
		log.WithField("event", "tls_verification_disabled").Warn("certificate verification disabled by configuration")
	}
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-in
}
