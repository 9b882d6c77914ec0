//go:build pcap
// +build pcap

package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// pcapReader reads corner-stream payloads from a capture file. Only
// available when building with the 'pcap' build tag.
type pcapReader struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

// OpenPcap opens a capture file and filters for corner-stream traffic on
// the given UDP port.
func OpenPcap(file string, udpPort int) (PacketReader, error) {
	handle, err := pcap.OpenOffline(file)
	if err != nil {
		return nil, fmt.Errorf("capture: open pcap %s: %w", file, err)
	}

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("capture: set BPF filter %q: %w", filter, err)
	}

	return &pcapReader{
		handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
	}, nil
}

func (r *pcapReader) NextPacket() ([]byte, time.Time, error) {
	for {
		packet, err := r.source.NextPacket()
		if err == io.EOF {
			return nil, time.Time{}, io.EOF
		}
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("capture: read pcap: %w", err)
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		return udp.Payload, packet.Metadata().Timestamp, nil
	}
}

func (r *pcapReader) Close() error {
	r.handle.Close()
	return nil
}
