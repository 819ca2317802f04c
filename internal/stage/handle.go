package stage

// Handles are lightweight, nullable, non-owning references used to address
// a stage and its endpoints without exposing raw ownership. They support
// validity checks and equality; every other use of a null handle is a
// fatal topology bug.

// NodeHandle addresses a stage. The zero value is the null handle.
type NodeHandle struct {
	stage *Stage
}

// Handle returns a handle addressing this stage.
func (s *Stage) Handle() NodeHandle { return NodeHandle{stage: s} }

// IsValid reports whether the handle addresses a stage.
func (h NodeHandle) IsValid() bool { return h.stage != nil }

// Stage returns the addressed stage; fatal on a null handle.
func (h NodeHandle) Stage() *Stage {
	if h.stage == nil {
		panic("stage: use of null node handle")
	}
	return h.stage
}

// ID returns the addressed stage's identifier; fatal on a null handle.
func (h NodeHandle) ID() string { return h.Stage().id }

// Input returns a handle to the indexed input; fatal on a null handle.
func (h NodeHandle) Input(index int) InputHandle {
	return InputHandle{input: h.Stage().Input(index)}
}

// Output returns a handle to the indexed output; fatal on a null handle.
func (h NodeHandle) Output(index int) OutputHandle {
	return OutputHandle{output: h.Stage().Output(index)}
}

// InputHandle addresses one input slot. The zero value is the null handle.
type InputHandle struct {
	input *Input
}

// Handle returns a handle addressing this input.
func (in *Input) Handle() InputHandle { return InputHandle{input: in} }

// IsValid reports whether the handle addresses an input.
func (h InputHandle) IsValid() bool { return h.input != nil }

// Get returns the addressed input; fatal on a null handle.
func (h InputHandle) Get() *Input {
	if h.input == nil {
		panic("stage: use of null input handle")
	}
	return h.input
}

// Node returns a handle to the owning stage; fatal on a null handle.
func (h InputHandle) Node() NodeHandle { return NodeHandle{stage: h.Get().owner} }

// OutputHandle addresses one output slot. The zero value is the null
// handle.
type OutputHandle struct {
	output *Output
}

// Handle returns a handle addressing this output.
func (o *Output) Handle() OutputHandle { return OutputHandle{output: o} }

// IsValid reports whether the handle addresses an output.
func (h OutputHandle) IsValid() bool { return h.output != nil }

// Get returns the addressed output; fatal on a null handle.
func (h OutputHandle) Get() *Output {
	if h.output == nil {
		panic("stage: use of null output handle")
	}
	return h.output
}

// Node returns a handle to the owning stage; fatal on a null handle.
func (h OutputHandle) Node() NodeHandle { return NodeHandle{stage: h.Get().owner} }
