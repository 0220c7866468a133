package stream

// State tracks the lifecycle of an exchange. The two half-directions, local
// send and remote receive, finish independently: closing the first moves an
// open stream into the matching half-closed state, closing the second makes
// the stream closed for good.
type State uint8

const (
	StateIdle State = iota + 1
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateHalfClosedLocal:
		return "half closed (local)"
	case StateHalfClosedRemote:
		return "half closed (remote)"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// setState is the single place transitions happen. Atomically with the state
// change, the half-direction that just finished releases its socket-access
// token: the reading side hands back the request lock (server) or leaves the
// pipeline (client), the writing side hands back the request lock (client) or
// leaves the pipeline (server). The connection mutex must be held.
func (s *Stream) setState(to State) {
	from := s.state
	if from == to {
		return
	}

	s.state = to

	readDone := to == StateHalfClosedRemote || (to == StateClosed && from != StateHalfClosedRemote)
	writeDone := to == StateHalfClosedLocal || (to == StateClosed && from != StateHalfClosedLocal)

	if readDone {
		if s.conn.role == RoleServer {
			s.conn.releaseReq(s)
		} else {
			s.conn.dequeue(s)
		}
	}

	if writeDone {
		if s.conn.role == RoleClient {
			s.conn.releaseReq(s)
		} else {
			s.conn.dequeue(s)
		}
	}

	s.stateCond.Broadcast()
}

// finishLocal closes the sending half-direction.
func (s *Stream) finishLocal() {
	if s.state == StateHalfClosedRemote {
		s.setState(StateClosed)
	} else {
		s.setState(StateHalfClosedLocal)
	}
}

// finishRemote closes the receiving half-direction.
func (s *Stream) finishRemote() {
	switch s.state {
	case StateHalfClosedLocal:
		s.setState(StateClosed)
	case StateIdle, StateOpen:
		s.setState(StateHalfClosedRemote)
	}
}
