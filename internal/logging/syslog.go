// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"net"
	"os"
	"time"
)

// SyslogConfig configures forwarding of log records to a remote syslog
// collector, in addition to the local sink.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // "udp" or "tcp"
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns syslog forwarding disabled, with the
// defaults that would apply if it were turned on.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "examproctor",
		Facility: 1, // user-level messages
	}
}

// syslogWriter writes RFC 3164-framed messages to a remote collector.
type syslogWriter struct {
	conn     net.Conn
	tag      string
	facility int
	hostname string
}

// NewSyslogWriter dials cfg.Host:cfg.Port and returns a writer that frames
// each Write call as a single syslog message. cfg.Host is required; the
// other fields are defaulted if zero.
func NewSyslogWriter(cfg SyslogConfig) (*syslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("logging: syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "examproctor"
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := net.DialTimeout(cfg.Protocol, addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("logging: dial syslog %s: %w", addr, err)
	}

	hostname, _ := os.Hostname()

	return &syslogWriter{
		conn:     conn,
		tag:      cfg.Tag,
		facility: cfg.Facility,
		hostname: hostname,
	}, nil
}

// Write sends p as the body of one syslog message at severity "info" (6).
func (w *syslogWriter) Write(p []byte) (int, error) {
	const severityInfo = 6
	priority := w.facility*8 + severityInfo
	msg := fmt.Sprintf("<%d>%s %s %s: %s", priority,
		time.Now().Format(time.Stamp), w.hostname, w.tag, p)
	if _, err := w.conn.Write([]byte(msg)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *syslogWriter) Close() error {
	return w.conn.Close()
}
