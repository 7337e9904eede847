package osmium

// Callbacks is the host-supplied event sink. Every field is optional; a nil
// callback is simply skipped. All callbacks fire synchronously on the thread
// that called Consume or one of the Write* methods, in protocol order. A
// callback returning a non-nil error unwinds the current state-machine step
// with that error, after which the connection should be discarded.
//
// Callbacks must not re-enter the engine's Consume; the Write* methods may be
// called from inside OnMessageHead/OnMessageData/OnMessageTail/OnUpgrade.
type Callbacks struct {
	// OnWritev emits outbound bytes. The buffers are only valid for the
	// duration of the call.
	OnWritev func(bufs [][]byte) error

	OnStreamStart func(id uint32) error
	OnStreamEnd   func(id uint32) error

	OnMessageHead func(id uint32, m *Message) error
	OnMessageData func(id uint32, data []byte) error
	// OnMessageTail ends a message; trailers is nil unless the peer sent
	// trailing headers.
	OnMessageTail func(id uint32, trailers *Message) error
	// OnMessagePush delivers a pushed request promised on stream parent.
	OnMessagePush func(id uint32, m *Message, parent uint32) error

	// OnFrame observes every fully reassembled inbound HTTP/2 frame before
	// it is dispatched.
	OnFrame    func(f *Frame) error
	OnSettings func() error
	// OnFlowIncrease reports send-window growth; id 0 is connection-level.
	OnFlowIncrease func(id uint32) error
	OnPong         func(data []byte) error
	// OnUpgrade fires after OnMessageHead for an HTTP/1 request carrying a
	// non-h2c Upgrade header. Respond with a 101 head inside the callback to
	// accept, or simply return to decline.
	OnUpgrade func() error
}

func (c *Connection) fireWritev(bufs ...[]byte) error {
	if c.cb.OnWritev == nil {
		return nil
	}
	return c.cb.OnWritev(bufs)
}

func (c *Connection) fireStreamStart(id uint32) error {
	if c.cb.OnStreamStart == nil {
		return nil
	}
	return c.cb.OnStreamStart(id)
}

func (c *Connection) fireStreamEnd(id uint32) error {
	if c.cb.OnStreamEnd == nil {
		return nil
	}
	return c.cb.OnStreamEnd(id)
}

func (c *Connection) fireMessageHead(id uint32, m *Message) error {
	if c.cb.OnMessageHead == nil {
		return nil
	}
	return c.cb.OnMessageHead(id, m)
}

func (c *Connection) fireMessageData(id uint32, data []byte) error {
	if c.cb.OnMessageData == nil {
		return nil
	}
	return c.cb.OnMessageData(id, data)
}

func (c *Connection) fireMessageTail(id uint32, trailers *Message) error {
	if c.cb.OnMessageTail == nil {
		return nil
	}
	return c.cb.OnMessageTail(id, trailers)
}

func (c *Connection) fireMessagePush(id uint32, m *Message, parent uint32) error {
	if c.cb.OnMessagePush == nil {
		return nil
	}
	return c.cb.OnMessagePush(id, m, parent)
}

func (c *Connection) fireFrame(f *Frame) error {
	if c.cb.OnFrame == nil {
		return nil
	}
	return c.cb.OnFrame(f)
}

func (c *Connection) fireSettings() error {
	if c.cb.OnSettings == nil {
		return nil
	}
	return c.cb.OnSettings()
}

func (c *Connection) fireFlowIncrease(id uint32) error {
	if c.cb.OnFlowIncrease == nil {
		return nil
	}
	return c.cb.OnFlowIncrease(id)
}

func (c *Connection) firePong(data []byte) error {
	if c.cb.OnPong == nil {
		return nil
	}
	return c.cb.OnPong(data)
}

func (c *Connection) fireUpgrade() error {
	if c.cb.OnUpgrade == nil {
		return nil
	}
	return c.cb.OnUpgrade()
}
