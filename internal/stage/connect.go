package stage

import (
	"fmt"

	"github.com/vk/packetgrid/internal/packet"
)

// Connect mates an output with an input. Connect is an atomic replace, not
// an add: any existing mate on either side is disconnected first, so each
// endpoint has at most one mate at all times.
func Connect(o *Output, in *Input) {
	if o == nil || in == nil {
		panic("stage: connect through nil endpoint")
	}
	if o.mate == in {
		return
	}
	DisconnectOutput(o)
	DisconnectInput(in)
	o.mate = in
	in.mate = o
	o.owner.logger.Debug("Endpoints connected.",
		"output", o.index, "downstream", in.owner.id, "input", in.index)
}

// DisconnectInput clears both sides of the input's connection. A no-op on
// an unconnected input. Disconnecting a prepared endpoint is a fatal
// topology bug: the engine must unprepare first.
func DisconnectInput(in *Input) {
	if in == nil {
		panic("stage: disconnect through nil input")
	}
	m := in.mate
	if m == nil {
		return
	}
	if in.Prepared() || m.Prepared() {
		panic(fmt.Sprintf("stage %s: disconnect of prepared input %d", in.owner.id, in.index))
	}
	m.mate = nil
	in.mate = nil
	in.demand.Store(int32(packet.DemandNone))
}

// DisconnectOutput clears both sides of the output's connection. A no-op
// on an unconnected output.
func DisconnectOutput(o *Output) {
	if o == nil {
		panic("stage: disconnect through nil output")
	}
	if o.mate == nil {
		return
	}
	if o.Prepared() || o.mate.Prepared() {
		panic(fmt.Sprintf("stage %s: disconnect of prepared output %d", o.owner.id, o.index))
	}
	DisconnectInput(o.mate)
}
