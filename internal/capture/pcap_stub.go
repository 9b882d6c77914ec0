//go:build !pcap
// +build !pcap

package capture

import "errors"

// OpenPcap is unavailable without the 'pcap' build tag, which requires
// libpcap at build time.
func OpenPcap(file string, udpPort int) (PacketReader, error) {
	return nil, errors.New("capture: pcap support not built in (rebuild with -tags pcap)")
}
