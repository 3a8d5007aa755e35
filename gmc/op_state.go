package gmc

import "sync/atomic"

// OpState is the lifecycle state of a Connection.
type OpState uint32

const (
	ClosedState OpState = iota
	ClosingState
	OpeningState
	OpenedState
)

// String returns the state name.
func (s OpState) String() string {
	switch s {
	case ClosedState:
		return "Closed"
	case ClosingState:
		return "Closing"
	case OpeningState:
		return "Opening"
	case OpenedState:
		return "Opened"
	default:
		return "Unknown"
	}
}

// atomicOpState guards Connection state transitions with compare-and-swap.
type atomicOpState struct {
	state atomic.Uint32
}

func (st *atomicOpState) String() string {
	return st.Get().String()
}

func (st *atomicOpState) Get() OpState {
	return OpState(st.state.Load())
}

func (st *atomicOpState) IsOpened() bool {
	return st.Get() == OpenedState
}

func (st *atomicOpState) ToOpening() bool {
	return st.state.CompareAndSwap(uint32(ClosedState), uint32(OpeningState))
}

func (st *atomicOpState) ToOpened() bool {
	return st.state.CompareAndSwap(uint32(OpeningState), uint32(OpenedState))
}

// ToClosing moves an opening or opened connection to closing.
// It returns false if the connection is already closing or closed.
func (st *atomicOpState) ToClosing() bool {
	if st.state.CompareAndSwap(uint32(OpenedState), uint32(ClosingState)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(OpeningState), uint32(ClosingState))
}

func (st *atomicOpState) ToClosed() {
	st.state.Store(uint32(ClosedState))
}
