package osmium

import "encoding/binary"

// Frame is one HTTP/2 frame, already stripped of the 9-byte header.
type Frame struct {
	Type    byte
	Flags   byte
	Stream  uint32
	Payload []byte
}

func packFrameHeader(length int, ft, flags byte, streamID uint32) [9]byte {
	var hdr [9]byte
	hdr[0] = byte(length >> 16)
	hdr[1] = byte(length >> 8)
	hdr[2] = byte(length)
	hdr[3] = ft
	hdr[4] = flags
	// top bit of stream id reserved
	binary.BigEndian.PutUint32(hdr[5:], streamID&0x7FFFFFFF)
	return hdr
}

func (c *Connection) writeFrameRaw(f *Frame) error {
	hdr := packFrameHeader(len(f.Payload), f.Type, f.Flags, f.Stream)
	if len(f.Payload) == 0 {
		return c.fireWritev(hdr[:])
	}
	return c.fireWritev(hdr[:], f.Payload)
}

// writeFrame serializes one outbound frame, splitting HEADERS/PUSH_PROMISE
// into CONTINUATIONs and DATA into multiple DATA frames when the payload
// exceeds the peer's max_frame_size. Flow control is the caller's business.
func (c *Connection) writeFrame(f *Frame) error {
	limit := int(c.settings[sideRemote].MaxFrameSize)
	if len(f.Payload) <= limit {
		return c.writeFrameRaw(f)
	}

	if f.Type != HeadersFrameType && f.Type != PushPromiseFrameType && f.Type != DataFrameType {
		// A really unexpected outcome, considering that the *lowest
		// possible* limit is 16 KiB.
		return assertionError("control frame too big")
	}
	if f.Flags&PaddedFlag != 0 {
		return notImplementedError("don't know how to split padded frames")
	}

	// When splitting HEADERS/PUSH_PROMISE, only the last CONTINUATION
	// carries END_HEADERS, but the first frame retains END_STREAM if set.
	// When splitting DATA, END_STREAM moves to the last frame.
	carry := f.Flags & EndHeadersFlag
	if f.Type == DataFrameType {
		carry = f.Flags & EndStreamFlag
	}

	part := Frame{f.Type, f.Flags &^ carry, f.Stream, nil}
	payload := f.Payload
	for len(payload) > limit {
		part.Payload = payload[:limit]
		if err := c.writeFrameRaw(&part); err != nil {
			return err
		}
		payload = payload[limit:]
		if part.Type != DataFrameType {
			part.Type = ContinuationFrameType
		}
		part.Flags &^= PriorityFlag | EndStreamFlag
	}
	part.Flags |= carry
	part.Payload = payload
	return c.writeFrameRaw(&part)
}

func (c *Connection) writeGoaway(code ResetCode) error {
	if c.goawaySent == 0 {
		c.goawaySent = c.lastStream[sideRemote]
	}
	var payload [8]byte
	binary.BigEndian.PutUint32(payload[0:4], c.goawaySent)
	binary.BigEndian.PutUint32(payload[4:8], uint32(code))
	return c.writeFrame(&Frame{GoawayFrameType, 0, 0, payload[:]})
}

// connError shuts the connection down with a GOAWAY and *then* reports a
// protocol error to the caller.
func (c *Connection) connError(code ResetCode, format string, args ...interface{}) error {
	if err := c.writeGoaway(code); err != nil {
		return err
	}
	return protocolError(format, args...)
}

func (c *Connection) writeRSTStreamByID(id uint32, code ResetCode) error {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(code))
	return c.writeFrame(&Frame{RSTStreamFrameType, 0, id, payload[:]})
}

// writeRSTStream resets a stream and forgets it, remembering the id in the
// reset history. If the peer's HEADERS have not arrived yet they may still
// do, in which case they must be decoded anyway to keep compression state.
func (c *Connection) writeRSTStream(s *stream, code ResetCode) error {
	if err := c.writeRSTStreamByID(s.id, code); err != nil {
		return err
	}
	return c.endStreamByLocal(s)
}

// handleInvalidStream tolerates frames on streams we recently reset, as the
// standard requires, and treats everything else as a protocol violation.
func (c *Connection) handleInvalidStream(f *Frame) error {
	if f.Stream != 0 && f.Stream <= c.lastStream[side(c.streamIsLocal(f.Stream))] {
		for _, r := range c.recentlyReset {
			if r.id != f.Stream {
				continue
			}
			// A stream reset while reading HEADERS may still receive the
			// header block (which the caller decodes regardless), but not
			// DATA; one reset mid-payload may receive anything but HEADERS.
			if (r.inHeaders && f.Type != DataFrameType) || (!r.inHeaders && f.Type != HeadersFrameType) {
				return nil
			}
		}
	}
	return c.connError(CodeProtocolError, "invalid stream %d", f.Stream)
}

func (c *Connection) writeSettingsDelta(old, new *Settings) error {
	return c.writeFrame(&Frame{SettingsFrameType, 0, 0, encodeSettingsDelta(old, new)})
}
