// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import (
	"fmt"
	"net"
)

func ParseMAC(macStr string) ([]byte, error) {
	hw, err := net.ParseMAC(macStr)
	if err != nil {
		return nil, err
	}
	return hw, nil
}

func FormatMAC(mac []byte) string {
	if len(mac) != 6 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// OUI returns the first three octets of mac as "xx:xx:xx", lower-cased, or
// "" if mac isn't a 6-byte hardware address.
func OUI(mac []byte) string {
	if len(mac) != 6 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x", mac[0], mac[1], mac[2])
}
