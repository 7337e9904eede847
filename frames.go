package osmium

import "encoding/binary"

var frameHandlers = [unknownFrameType]func(*Connection, *stream, *Frame) error{
	DataFrameType:         (*Connection).handleData,
	HeadersFrameType:      (*Connection).handleHeaders,
	PriorityFrameType:     (*Connection).handlePriority,
	RSTStreamFrameType:    (*Connection).handleRSTStream,
	SettingsFrameType:     (*Connection).handleSettings,
	PushPromiseFrameType:  (*Connection).handlePushPromise,
	PingFrameType:         (*Connection).handlePing,
	GoawayFrameType:       (*Connection).handleGoaway,
	WindowUpdateFrameType: (*Connection).handleWindowUpdate,
	ContinuationFrameType: (*Connection).handleContinuation,
}

// handlePadding strips the padding declared by the PADDED flag, leaving
// f.Payload as the real contents.
func (c *Connection) handlePadding(f *Frame) error {
	if f.Flags&PaddedFlag == 0 {
		return nil
	}
	if len(f.Payload) == 0 {
		return c.connError(CodeFrameSizeError, "no padding found")
	}
	padding := int(f.Payload[0]) + 1
	if padding > len(f.Payload) {
		return c.connError(CodeProtocolError, "more padding than data")
	}
	f.Payload = f.Payload[1 : len(f.Payload)-(padding-1)]
	return nil
}

// handlePrioritySpec consumes the 5-byte priority section of a HEADERS frame
// with the PRIORITY flag, or of a PRIORITY frame. Prioritization itself is
// not implemented; only the self-dependency check applies.
func (c *Connection) handlePrioritySpec(s *stream, f *Frame) error {
	if f.Flags&PriorityFlag == 0 && f.Type != PriorityFrameType {
		return nil
	}
	if len(f.Payload) < 5 || (f.Type == PriorityFrameType && len(f.Payload) != 5) {
		return c.connError(CodeFrameSizeError, "PRIORITY of invalid size")
	}
	if f.Stream == 0 {
		return c.connError(CodeProtocolError, "PRIORITY on stream 0")
	}
	if f.Stream == binary.BigEndian.Uint32(f.Payload)&0x7FFFFFFF {
		if s != nil {
			return c.writeRSTStream(s, CodeProtocolError)
		}
		return c.connError(CodeProtocolError, "PRIORITY depends on itself")
	}
	f.Payload = f.Payload[5:]
	return nil
}

func (c *Connection) handlePriority(s *stream, f *Frame) error {
	return c.handlePrioritySpec(s, f)
}

// handleEndStream finishes the read half of a stream, verifying that any
// declared content-length was satisfied.
func (c *Connection) handleEndStream(s *stream, trailers *Message) error {
	if !s.readingHeadResponse && s.remainingPayload != 0 && s.remainingPayload != -1 {
		return c.writeRSTStream(s, CodeProtocolError)
	}
	id := s.id
	if err := c.fireMessageTail(id, trailers); err != nil {
		return err
	}
	// The callback may have reset the stream; look it up again.
	if s = c.findStream(id); s == nil {
		return nil
	}
	s.rState = streamClosed
	if s.wState == streamClosed {
		return c.endStream(s)
	}
	return nil
}

// handleEndHeaders decodes a reassembled header block and hands the message
// off for validation. A decode failure is fatal to the whole connection
// since the compression state is no longer in sync.
func (c *Connection) handleEndHeaders(s *stream, f *Frame) error {
	if f.Flags&EndHeadersFlag == 0 {
		return assertionError("HEADERS/PUSH_PROMISE not merged with CONTINUATION")
	}
	fields, err := c.decoder.decode(f.Payload)
	if err != nil {
		if gerr := c.writeGoaway(CodeCompressionError); gerr != nil {
			return gerr
		}
		return protocolError("hpack: %v", err)
	}
	if s == nil {
		// The stream has already been reset; the block had to be decoded
		// anyway, but the message is dropped.
		return nil
	}
	return c.handleMessage(s, f, fields)
}

func (c *Connection) handleHeaders(s *stream, f *Frame) error {
	if err := c.handlePadding(f); err != nil {
		return err
	}
	if err := c.handlePrioritySpec(s, f); err != nil {
		return err
	}

	if s == nil {
		if c.client || f.Stream <= c.lastStream[sideRemote] {
			if err := c.handleInvalidStream(f); err != nil {
				return err
			}
			// Recently reset: decompress the block, but ignore the message.
		} else if c.goawaySent != 0 || c.streamCount[sideRemote] >= c.settings[sideLocal].MaxConcurrentStreams {
			if err := c.writeRSTStreamByID(f.Stream, CodeRefusedStream); err != nil {
				return err
			}
		} else {
			var err error
			if s, err = c.newStream(f.Stream, false); err != nil {
				return err
			}
		}
	} else if s.rState == streamData {
		if f.Flags&EndStreamFlag == 0 {
			return c.connError(CodeProtocolError, "trailers without END_STREAM")
		}
	} else if s.rState != streamHeaders {
		return c.connError(CodeProtocolError, "unexpected HEADERS")
	}

	return c.handleEndHeaders(s, f)
}

func (c *Connection) handlePushPromise(s *stream, f *Frame) error {
	if err := c.handlePadding(f); err != nil {
		return err
	}
	if len(f.Payload) < 4 {
		return c.connError(CodeFrameSizeError, "PUSH_PROMISE too short")
	}
	if c.settings[sideLocal].EnablePush == 0 || !c.streamIsLocal(f.Stream) ||
		s == nil || s.rState == streamClosed {
		return c.connError(CodeProtocolError, "unexpected PUSH_PROMISE")
	}

	child, err := c.newStream(binary.BigEndian.Uint32(f.Payload)&0x7FFFFFFF, false)
	if err != nil {
		return err
	}
	f.Payload = f.Payload[4:]
	return c.handleEndHeaders(child, f)
}

func (c *Connection) handleContinuation(s *stream, f *Frame) error {
	// There were no preceding HEADERS, else the frame loop would have merged
	// this into them.
	return c.connError(CodeProtocolError, "unexpected CONTINUATION")
}

func (c *Connection) handleData(s *stream, f *Frame) error {
	// For purposes of flow control, padding counts.
	flow := int64(len(f.Payload))
	if err := c.handlePadding(f); err != nil {
		return err
	}

	// Frames on invalid streams still count against the connection-wide flow
	// control window, which is replenished immediately.
	if flow != 0 {
		var inc [4]byte
		binary.BigEndian.PutUint32(inc[:], uint32(flow))
		if err := c.writeFrame(&Frame{WindowUpdateFrameType, 0, 0, inc[:]}); err != nil {
			return err
		}
	}

	if s == nil {
		return c.handleInvalidStream(f)
	}
	if s.rState != streamData {
		return c.writeRSTStream(s, CodeStreamClosed)
	}
	if flow != 0 && flow > s.windowRecv+int64(c.settings[sideLocal].InitialWindowSize) {
		return c.writeRSTStream(s, CodeFlowControlError)
	}

	if s.remainingPayload != -1 {
		s.remainingPayload -= int64(len(f.Payload))
	}

	if len(f.Payload) != 0 {
		if err := c.fireMessageData(f.Stream, f.Payload); err != nil {
			return err
		}
		if s = c.findStream(f.Stream); s == nil {
			return nil
		}
	}

	if f.Flags&EndStreamFlag != 0 {
		return c.handleEndStream(s, nil)
	}

	if c.config.ManualFlowControl {
		// Real payload bytes wait for OpenFlow; padding is replenished now.
		s.windowRecv -= int64(len(f.Payload))
		flow -= int64(len(f.Payload))
	}
	if flow == 0 {
		return nil
	}
	var inc [4]byte
	binary.BigEndian.PutUint32(inc[:], uint32(flow))
	return c.writeFrame(&Frame{WindowUpdateFrameType, 0, s.id, inc[:]})
}

func (c *Connection) handlePing(s *stream, f *Frame) error {
	if f.Stream != 0 {
		return c.connError(CodeProtocolError, "PING on a stream")
	}
	if len(f.Payload) != 8 {
		return c.connError(CodeFrameSizeError, "bad PING frame")
	}
	if f.Flags&AckFlag != 0 {
		return c.firePong(f.Payload)
	}
	return c.writeFrame(&Frame{PingFrameType, AckFlag, 0, f.Payload})
}

func (c *Connection) handleGoaway(s *stream, f *Frame) error {
	if f.Stream != 0 {
		return c.connError(CodeProtocolError, "GOAWAY on a stream")
	}
	if len(f.Payload) < 8 {
		return c.connError(CodeFrameSizeError, "bad GOAWAY")
	}
	if code := ResetCode(binary.BigEndian.Uint32(f.Payload[4:8])); code != CodeNoError {
		return protocolError("disconnected with error %d", code)
	}
	return disconnectError("disconnected")
}

func (c *Connection) handleRSTStream(s *stream, f *Frame) error {
	if s == nil {
		return c.handleInvalidStream(f)
	}
	if len(f.Payload) != 4 {
		return c.connError(CodeFrameSizeError, "bad RST_STREAM")
	}
	return c.endStream(s)
}

func (c *Connection) handleSettings(s *stream, f *Frame) error {
	if f.Stream != 0 {
		return c.connError(CodeProtocolError, "SETTINGS on a stream")
	}
	if f.Flags&AckFlag != 0 {
		if len(f.Payload) != 0 {
			return c.connError(CodeFrameSizeError, "bad SETTINGS ack")
		}
		return nil
	}
	if len(f.Payload)%6 != 0 {
		return c.connError(CodeFrameSizeError, "bad SETTINGS")
	}

	cfg := &c.settings[sideRemote]
	oldWindow := cfg.InitialWindowSize

	for p := f.Payload; len(p) > 0; p = p[6:] {
		cfg.setField(binary.BigEndian.Uint16(p[0:2]), binary.BigEndian.Uint32(p[2:6]))
	}

	if cfg.EnablePush > 1 {
		return c.connError(CodeProtocolError, "enable_push out of bounds")
	}
	if cfg.InitialWindowSize > 0x7FFFFFFF {
		return c.connError(CodeFlowControlError, "initial_window_size too big")
	}
	if cfg.MaxFrameSize < 16384 || cfg.MaxFrameSize > 16777215 {
		return c.connError(CodeProtocolError, "max_frame_size out of bounds")
	}

	if cfg.InitialWindowSize > oldWindow {
		if err := c.fireFlowIncrease(0); err != nil {
			return err
		}
	}

	// The encoder's dynamic table follows the peer's limit, capped by ours.
	limit := cfg.HeaderTableSize
	if limit > c.settings[sideLocal].HeaderTableSize {
		limit = c.settings[sideLocal].HeaderTableSize
	}
	c.encoder.setLimit(limit)

	if err := c.writeFrame(&Frame{SettingsFrameType, AckFlag, 0, nil}); err != nil {
		return err
	}
	return c.fireSettings()
}

func (c *Connection) handleWindowUpdate(s *stream, f *Frame) error {
	if len(f.Payload) != 4 {
		return c.connError(CodeFrameSizeError, "bad WINDOW_UPDATE")
	}
	delta := binary.BigEndian.Uint32(f.Payload)
	if delta == 0 || delta > 0x7FFFFFFF {
		return c.connError(CodeProtocolError, "window increment out of bounds")
	}

	if f.Stream == 0 {
		c.windowSend += int64(delta)
		if c.windowSend > 0x7FFFFFFF {
			return c.connError(CodeFlowControlError, "window increment too big")
		}
	} else if s != nil {
		s.windowSend += int64(delta)
		if s.windowSend+int64(c.settings[sideRemote].InitialWindowSize) > 0x7FFFFFFF {
			return c.writeRSTStream(s, CodeFlowControlError)
		}
	} else {
		return c.handleInvalidStream(f)
	}

	return c.fireFlowIncrease(f.Stream)
}
