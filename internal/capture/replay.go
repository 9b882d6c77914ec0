package capture

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/launchlab-data/launchlab/internal/monitoring"
)

// PacketReader yields corner-stream payloads with capture timestamps. The
// pcap-backed implementation lives behind the pcap build tag; tests use an
// in-memory reader.
type PacketReader interface {
	// NextPacket returns the next payload and its capture timestamp.
	// io.EOF signals a clean end of stream.
	NextPacket() ([]byte, time.Time, error)

	// Close releases the underlying handle.
	Close() error
}

// ReplayConfig controls replay pacing.
type ReplayConfig struct {
	// Realtime spaces frames by their recorded capture timestamps.
	// When false the stream is replayed as fast as it parses.
	Realtime bool
}

// Replay feeds every frame in the stream to the handler. Malformed packets
// are skipped. Returns nil on end of stream.
func Replay(ctx context.Context, r PacketReader, cfg ReplayConfig, handler FrameHandler) error {
	defer r.Close()

	var packets, badPackets uint64
	var lastCapture time.Time
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, captured, err := r.NextPacket()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("capture: replay complete: packets=%d bad=%d elapsed=%v",
				packets, badPackets, time.Since(start))
			return nil
		}
		if err != nil {
			return err
		}
		packets++

		frame, perr := ParsePacket(payload)
		if perr != nil {
			badPackets++
			continue
		}

		if cfg.Realtime && !lastCapture.IsZero() {
			if gap := captured.Sub(lastCapture); gap > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(gap):
				}
			}
		}
		lastCapture = captured

		handler(frame)
	}
}
