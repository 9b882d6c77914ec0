// Package capture receives the corner stream from the camera unit and turns
// it into vision frames. The wire format is a fixed little-endian UDP payload
// carrying one frame of scored detections plus the sensor timing the
// rolling-shutter solver needs.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/launchlab-data/launchlab/internal/vision"
)

// Corner-stream wire format, little-endian:
//
//	offset 0   magic "LLCS"
//	offset 4   version        uint8
//	offset 5   frame id       uint64
//	offset 13  timestamp      int64 (unix nanoseconds)
//	offset 21  sensor rows    uint16
//	offset 23  readout        uint32 (microseconds)
//	offset 27  corner count   uint16
//	offset 29  count × {x float32, y float32, score float32}
const (
	packetMagic   = "LLCS"
	packetVersion = 1
	headerSize    = 29
	pointSize     = 12

	// MaxCornersPerPacket bounds allocation from a hostile or corrupt
	// packet; the detector never emits more than this.
	MaxCornersPerPacket = 1024
)

var (
	ErrShortPacket    = errors.New("capture: packet shorter than header")
	ErrBadMagic       = errors.New("capture: bad packet magic")
	ErrBadVersion     = errors.New("capture: unsupported packet version")
	ErrTruncated      = errors.New("capture: corner payload truncated")
	ErrTooManyCorners = errors.New("capture: corner count exceeds limit")
)

// ParsePacket decodes one corner-stream payload into a frame.
func ParsePacket(payload []byte) (*vision.Frame, error) {
	if len(payload) < headerSize {
		return nil, ErrShortPacket
	}
	if string(payload[0:4]) != packetMagic {
		return nil, ErrBadMagic
	}
	if payload[4] != packetVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, payload[4])
	}

	count := int(binary.LittleEndian.Uint16(payload[27:29]))
	if count > MaxCornersPerPacket {
		return nil, fmt.Errorf("%w: %d", ErrTooManyCorners, count)
	}
	if len(payload) < headerSize+count*pointSize {
		return nil, ErrTruncated
	}

	f := &vision.Frame{
		FrameID:         binary.LittleEndian.Uint64(payload[5:13]),
		Timestamp:       time.Unix(0, int64(binary.LittleEndian.Uint64(payload[13:21]))),
		SensorRows:      int(binary.LittleEndian.Uint16(payload[21:23])),
		ReadoutDuration: time.Duration(binary.LittleEndian.Uint32(payload[23:27])) * time.Microsecond,
		Corners:         make([]vision.CornerPoint, count),
	}
	for i := 0; i < count; i++ {
		off := headerSize + i*pointSize
		f.Corners[i] = vision.CornerPoint{
			X:     float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off : off+4]))),
			Y:     float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off+4 : off+8]))),
			Score: float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off+8 : off+12]))),
		}
	}
	return f, nil
}

// MarshalPacket encodes a frame into the wire format. Used by the replay
// tooling and tests; the camera unit is the normal producer.
func MarshalPacket(f *vision.Frame) ([]byte, error) {
	if len(f.Corners) > MaxCornersPerPacket {
		return nil, fmt.Errorf("%w: %d", ErrTooManyCorners, len(f.Corners))
	}
	buf := make([]byte, headerSize+len(f.Corners)*pointSize)
	copy(buf[0:4], packetMagic)
	buf[4] = packetVersion
	binary.LittleEndian.PutUint64(buf[5:13], f.FrameID)
	binary.LittleEndian.PutUint64(buf[13:21], uint64(f.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint16(buf[21:23], uint16(f.SensorRows))
	binary.LittleEndian.PutUint32(buf[23:27], uint32(f.ReadoutDuration/time.Microsecond))
	binary.LittleEndian.PutUint16(buf[27:29], uint16(len(f.Corners)))
	for i, c := range f.Corners {
		off := headerSize + i*pointSize
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(float32(c.X)))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(float32(c.Y)))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], math.Float32bits(float32(c.Score)))
	}
	return buf, nil
}
