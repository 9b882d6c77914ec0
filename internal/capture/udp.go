package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/launchlab-data/launchlab/internal/monitoring"
	"github.com/launchlab-data/launchlab/internal/vision"
)

// FrameHandler consumes decoded frames. The pipeline's frame callback
// satisfies it.
type FrameHandler func(*vision.Frame)

// UDPSourceConfig configures the live corner-stream listener.
type UDPSourceConfig struct {
	Address     string        // listen address, e.g. ":8844"
	RcvBuf      int           // socket receive buffer, 0 for OS default
	LogInterval time.Duration // packet stats logging cadence
}

// DefaultUDPSourceConfig returns the production listener settings.
func DefaultUDPSourceConfig() UDPSourceConfig {
	return UDPSourceConfig{
		Address:     ":8844",
		RcvBuf:      4 << 20,
		LogInterval: time.Minute,
	}
}

// UDPSource receives corner-stream packets from the camera unit and feeds
// decoded frames to a handler.
type UDPSource struct {
	cfg     UDPSourceConfig
	handler FrameHandler
}

// NewUDPSource creates a listener that feeds frames to handler.
func NewUDPSource(cfg UDPSourceConfig, handler FrameHandler) *UDPSource {
	return &UDPSource{cfg: cfg, handler: handler}
}

// Run listens until the context is cancelled. Malformed packets are counted
// and skipped; they never stop the stream.
func (s *UDPSource) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("capture: resolve %s: %w", s.cfg.Address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("capture: listen %s: %w", s.cfg.Address, err)
	}
	defer conn.Close()

	if s.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(s.cfg.RcvBuf); err != nil {
			monitoring.Logf("capture: set receive buffer %d: %v", s.cfg.RcvBuf, err)
		}
	}
	monitoring.Logf("capture: listening on %s", conn.LocalAddr())

	buf := make([]byte, 65535)
	var packets, badPackets, frames uint64
	lastLog := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return fmt.Errorf("capture: set deadline: %w", err)
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return fmt.Errorf("capture: read: %w", err)
		}
		packets++

		frame, err := ParsePacket(buf[:n])
		if err != nil {
			badPackets++
			continue
		}
		frames++
		s.handler(frame)

		if s.cfg.LogInterval > 0 && time.Since(lastLog) >= s.cfg.LogInterval {
			monitoring.Logf("capture: packets=%d frames=%d bad=%d", packets, frames, badPackets)
			lastLog = time.Now()
		}
	}
}
