package codec

import (
	"errors"
	"sync"

	"github.com/smallnest/ringbuffer"
)

const (
	berryMedPacketLen = 5
	berryMedSyncBit   = 0x80

	// DefaultStreamCapacity holds a few seconds of BerryMed traffic.
	DefaultStreamCapacity = 1024
)

// StreamDecoder reassembles BerryMed packets from a notification byte stream.
//
// Clones that split or coalesce packets across notifications still carry the
// protocol's framing: the first byte of a packet has bit 7 set and the other four
// bytes have it clear. Bytes are buffered until a full aligned packet is available.
type StreamDecoder struct {
	mu      sync.Mutex
	buf     *ringbuffer.RingBuffer
	pkt     [berryMedPacketLen]byte
	pos     int
	dropped int
}

// NewStreamDecoder creates a decoder buffering up to capacity bytes.
func NewStreamDecoder(capacity int) *StreamDecoder {
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	return &StreamDecoder{buf: ringbuffer.New(capacity)}
}

// Feed appends chunk and returns every complete packet decoded with the BerryMed
// layout. Packets whose values fail validation are returned unmatched.
func (d *StreamDecoder) Feed(chunk []byte) []VendorCustom {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.buf.Write(chunk)
	if err != nil || n < len(chunk) {
		d.dropped += len(chunk) - n
	}

	var out []VendorCustom
	for {
		b, err := d.buf.ReadByte()
		if err != nil {
			if !errors.Is(err, ringbuffer.ErrIsEmpty) {
				d.dropped += d.pos
				d.pos = 0
			}
			return out
		}
		if b&berryMedSyncBit != 0 {
			// start of packet; any partial packet in progress is discarded
			if d.pos != 0 {
				d.dropped += d.pos
			}
			d.pkt[0] = b
			d.pos = 1
			continue
		}
		if d.pos == 0 {
			d.dropped++
			continue
		}
		d.pkt[d.pos] = b
		d.pos++
		if d.pos == berryMedPacketLen {
			out = append(out, DecodeLayouts(d.pkt[:], []Layout{layoutBerryMed}))
			d.pos = 0
		}
	}
}

// Dropped returns the number of bytes discarded because they were out of frame or
// did not fit in the buffer.
func (d *StreamDecoder) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Pending reports whether bytes of a started packet are waiting for the rest.
func (d *StreamDecoder) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos != 0 || d.buf.Length() > 0
}

// Reset discards buffered bytes and any partial packet.
func (d *StreamDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf.Reset()
	d.pos = 0
}

// LooksLikeBerryMedStream reports whether b contains a BerryMed sync byte.
func LooksLikeBerryMedStream(b []byte) bool {
	for _, c := range b {
		if c&berryMedSyncBit != 0 {
			return true
		}
	}
	return false
}
