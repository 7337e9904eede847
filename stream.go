package osmium

type streamState uint8

const (
	streamHeaders streamState = iota
	streamData
	streamClosed
)

// stream tracks one HTTP/2 stream (or the single in-flight HTTP/1 exchange).
// The read and write halves advance independently; a stream is removed from
// the table once both reach streamClosed.
type stream struct {
	id     uint32
	rState streamState
	wState streamState

	writingChunked      bool
	readingHeadResponse bool

	// Window deltas relative to the respective initial_window_size values.
	windowRecv int64
	windowSend int64

	// Declared content-length countdown; -1 when unknown/unbounded.
	remainingPayload int64
}

// resetEntry remembers a recently locally-closed stream so in-flight frames
// from the peer do not count as protocol errors.
type resetEntry struct {
	id uint32
	// Whether the read half was still waiting for HEADERS when reset. Such
	// streams may still legitimately receive (and must decode) a header
	// block, but not DATA; for others it is the opposite.
	inHeaders bool
}

const (
	sideRemote = 0
	sideLocal  = 1
)

func side(local bool) int {
	if local {
		return sideLocal
	}
	return sideRemote
}

func (c *Connection) streamIsLocal(id uint32) bool {
	return (id%2 == 1) == c.client
}

func (c *Connection) findStream(id uint32) *stream {
	return c.streams[id]
}

// newStream registers a stream, enforcing id parity, monotonicity and the
// concurrent-stream limit. Violations by the peer are protocol errors;
// violations by the local caller report InvalidStream or WouldBlock.
func (c *Connection) newStream(id uint32, local bool) (*stream, error) {
	if c.streamIsLocal(id) != local {
		if local {
			return nil, invalidStreamError("incorrect stream id parity")
		}
		return nil, protocolError("incorrect stream id parity")
	}
	if id <= c.lastStream[side(local)] {
		if local {
			return nil, invalidStreamError("nonmonotonic stream id")
		}
		return nil, protocolError("nonmonotonic stream id")
	}
	limit := uint32(1)
	if c.mode == modeHTTP2 {
		limit = c.settings[side(!local)].MaxConcurrentStreams
	}
	if c.streamCount[side(local)] >= limit {
		if local {
			return nil, wouldBlockError("wait for OnStreamEnd")
		}
		return nil, protocolError("peer exceeded stream limit")
	}

	s := &stream{id: id}
	// The side that will never read or write this stream starts closed:
	// even-numbered (pushed) streams carry no request payload.
	if id%2 == 0 && local {
		s.rState = streamClosed
	}
	if id%2 == 0 && !local {
		s.wState = streamClosed
	}

	c.lastStream[side(local)] = id
	c.streams[id] = s
	c.streamCount[side(local)]++

	if err := c.fireStreamStart(id); err != nil {
		delete(c.streams, id)
		c.streamCount[side(local)]--
		return nil, err
	}
	return s, nil
}

// endStream removes a stream from the table and reports it to the host.
func (c *Connection) endStream(s *stream) error {
	delete(c.streams, s.id)
	c.streamCount[side(c.streamIsLocal(s.id))]--
	return c.fireStreamEnd(s.id)
}

// endStreamByLocal is endStream for streams closed on local initiative.
// HEADERS, DATA, WINDOW_UPDATE and RST_STREAM may still arrive on them
// simply because the peer sent the frames before receiving ours; recording
// the id lets those frames be tolerated, as the standard requires.
func (c *Connection) endStreamByLocal(s *stream) error {
	if s.rState != streamClosed {
		c.recentlyReset[c.recentlyResetNext] = resetEntry{s.id, s.rState == streamHeaders}
		c.recentlyResetNext = (c.recentlyResetNext + 1) % resetHistory
	}
	return c.endStream(s)
}
