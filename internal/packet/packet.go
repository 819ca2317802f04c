// Package packet defines the value types exchanged between connected
// pipeline stages: the Packet data unit, the Demand backpressure signal,
// and the Allocator contract for payload storage.
package packet

import "fmt"

// Demand is a consumer-side signal describing how many more packets the
// consumer currently wants on a connection.
type Demand int32

const (
	// DemandNone means the consumer wants no packets right now.
	DemandNone Demand = iota
	// DemandOne means the consumer wants exactly one more packet.
	DemandOne
	// DemandUnlimited means the consumer accepts packets as fast as the
	// producer can supply them.
	DemandUnlimited
)

// String implements fmt.Stringer for log output.
func (d Demand) String() string {
	switch d {
	case DemandNone:
		return "none"
	case DemandOne:
		return "one"
	case DemandUnlimited:
		return "unlimited"
	default:
		return fmt.Sprintf("demand(%d)", int32(d))
	}
}

// Allocator produces and reclaims backing storage for packet payloads.
// Implementations decide pooling and sizing policy; the pipeline machinery
// only routes payloads back to the allocator that produced them.
type Allocator interface {
	// AllocatePayload returns a payload region of at least size bytes, or an
	// error when storage is exhausted. Exhaustion is a transient condition
	// for node logic to handle, never a pipeline failure.
	AllocatePayload(size int) ([]byte, error)

	// ReleasePayload returns a previously allocated region.
	ReleasePayload(payload []byte)
}

// heapAllocator is the default Allocator, backed by the Go heap.
type heapAllocator struct{}

func (heapAllocator) AllocatePayload(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (heapAllocator) ReleasePayload(payload []byte) {}

// NewHeapAllocator returns the default heap-backed allocator.
func NewHeapAllocator() Allocator {
	return heapAllocator{}
}

// Packet is a single unit of data flowing from an Output to an Input. A
// packet is owned by exactly one holder at a time; the final consumer
// releases it back to its allocator.
type Packet struct {
	payload   []byte
	size      int
	end       bool
	allocator Allocator
}

// New wraps a payload region in a Packet. The allocator may be nil for
// payloads that need no reclamation.
func New(payload []byte, end bool, allocator Allocator) *Packet {
	return &Packet{
		payload:   payload,
		size:      len(payload),
		end:       end,
		allocator: allocator,
	}
}

// End returns a zero-length end-of-stream marker packet.
func End() *Packet {
	return &Packet{end: true}
}

// Payload returns the packet's payload region.
func (p *Packet) Payload() []byte { return p.payload }

// Size returns the payload size in bytes.
func (p *Packet) Size() int { return p.size }

// IsEnd reports whether this packet marks the end of the stream.
func (p *Packet) IsEnd() bool { return p.end }

// Release returns the payload to its allocator. Safe to call more than
// once; only the first call reaches the allocator.
func (p *Packet) Release() {
	if p.allocator != nil && p.payload != nil {
		p.allocator.ReleasePayload(p.payload)
	}
	p.payload = nil
	p.allocator = nil
}
