package osmium

import (
	"encoding/binary"
	"strconv"

	"golang.org/x/net/http/httpguts"
)

// discardRemainingPayload closes the write half once the local side signaled
// final. If the peer's read half is still open in h2 server mode, an
// RST_STREAM(NO_ERROR) tells it we will not consume the rest of the request.
func (c *Connection) discardRemainingPayload(s *stream) error {
	s.wState = streamClosed
	if s.rState == streamClosed {
		return c.endStreamByLocal(s)
	}
	if !c.client && c.mode == modeHTTP2 {
		return c.writeRSTStream(s, CodeNoError)
	}
	return nil
}

func fmtChunkLength(n int) []byte {
	return strconv.AppendUint(nil, uint64(n), 16)
}

func (c *Connection) writeHeadH1(s *stream, m *Message, final bool) error {
	bufs := make([][]byte, 0, 4*len(m.Headers)+8)
	if c.client {
		bufs = append(bufs, []byte(m.Method), []byte(" "), []byte(m.Path), []byte(" HTTP/1.1\r\n"))
	} else {
		reason := m.Method
		if reason == "" {
			reason = "No Reason"
		}
		bufs = append(bufs, []byte("HTTP/1.1 "), []byte(strconv.Itoa(m.Code)), []byte(" "), []byte(reason), []byte(CRLF))
	}

	s.writingChunked = !isInformational(m.Code) && !final
	for _, h := range m.Headers {
		if h.Name == ":authority" {
			h.Name = "host"
		} else if h.Name != "" && h.Name[0] == ':' {
			continue // :scheme, probably
		} else if h.Name == "content-length" || h.Name == "upgrade" {
			// An explicit length (or a protocol switch) overrides chunking,
			// so that e.g. GET with final=false still works.
			s.writingChunked = false
		} else if h.Name == "transfer-encoding" {
			// Either chunked framing is on already, there is no body at
			// all, or the message is invalid for carrying content-length
			// and transfer-encoding both.
			if h.Value = removeChunkedTE(h.Value); h.Value == "" {
				continue
			}
		}
		bufs = append(bufs, []byte(h.Name), []byte(": "), []byte(h.Value), []byte(CRLF))
	}
	if s.writingChunked {
		bufs = append(bufs, []byte("transfer-encoding: chunked\r\n\r\n"))
	} else {
		bufs = append(bufs, []byte(CRLF))
	}
	if err := c.fireWritev(bufs...); err != nil {
		return err
	}

	if m.Code == 101 {
		// Only valid while still blocked in OnMessageHead/OnUpgrade.
		if c.state != stateH1Head || s.rState == streamClosed {
			return assertionError("accepted an h1 upgrade, but did not block in OnUpgrade")
		}
		c.remainingH1Payload = -2
	}
	return nil
}

func (c *Connection) writeHeadH2(s *stream, m *Message, final bool) error {
	if m.Code == 101 {
		return assertionError("cannot switch protocols over an http2 connection")
	}
	flags := EndHeadersFlag
	if final {
		flags |= EndStreamFlag
	}
	var pseudo []Header
	if c.client {
		pseudo = []Header{{":method", m.Method}, {":path", m.Path}}
	} else {
		pseudo = []Header{{":status", strconv.Itoa(m.Code)}}
	}
	if err := c.encoder.encode(pseudo); err != nil {
		return protocolError("hpack: %v", err)
	}
	if err := c.encoder.encode(m.Headers); err != nil {
		return protocolError("hpack: %v", err)
	}
	// An error between here and the frame write would desynchronize the
	// compression state, so there is no rollback: the connection is done for.
	return c.writeFrame(&Frame{HeadersFrameType, flags, s.id, c.encoder.take()})
}

// WriteHead sends a request or response head on the given stream, creating
// the stream first when a client starts a new request. final marks a message
// with no payload.
func (c *Connection) WriteHead(sid uint32, m *Message, final bool) error {
	if c.state == stateClosed {
		return disconnectError("connection closed")
	}
	if c.client && m.Code != 0 {
		return assertionError("request with a code")
	}
	if !c.client && m.Path != "" {
		return assertionError("response with a path")
	}
	if isInformational(m.Code) && final {
		return assertionError("1xx codes cannot end the stream")
	}
	for _, h := range m.Headers {
		for i := 0; i < len(h.Name); i++ {
			if 'A' <= h.Name[i] && h.Name[i] <= 'Z' {
				return assertionError("header names should be lowercase")
			}
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return assertionError("invalid value of header %q", h.Name)
		}
	}

	s := c.findStream(sid)
	if c.client && s == nil {
		var err error
		if s, err = c.newStream(sid, true); err != nil {
			return err
		}
	}
	if s == nil || s.wState != streamHeaders {
		return invalidStreamError("this stream is not writable")
	}

	if c.client {
		s.readingHeadResponse = m.Method == "HEAD"
	}

	var err error
	if c.mode == modeHTTP2 {
		err = c.writeHeadH2(s, m, final)
	} else {
		err = c.writeHeadH1(s, m, final)
	}
	if err != nil {
		return err
	}

	if m.Code == 101 || !isInformational(m.Code) {
		s.wState = streamData
	}
	if final {
		return c.discardRemainingPayload(s)
	}
	return nil
}

func (c *Connection) writeDataH1(s *stream, data []byte, final bool) error {
	if !s.writingChunked {
		if len(data) == 0 {
			return nil
		}
		return c.fireWritev(data)
	}
	if len(data) == 0 {
		if final {
			return c.fireWritev([]byte("0\r\n\r\n"))
		}
		return nil
	}
	tail := CRLF
	if final {
		tail = "\r\n0\r\n\r\n"
	}
	return c.fireWritev(append(fmtChunkLength(len(data)), CRLF...), data, []byte(tail))
}

// writeDataH2 clamps the write to the effective send window and charges both
// windows for what actually goes out. The clamped size is left in the
// returned count; END_STREAM is only sent when nothing was cut off.
func (c *Connection) writeDataH2(s *stream, data []byte, final bool) (int, error) {
	limit := s.windowSend + int64(c.settings[sideRemote].InitialWindowSize)
	if limit > c.windowSend {
		limit = c.windowSend
	}
	if limit < 0 {
		limit = 0
	}
	if int64(len(data)) > limit {
		data = data[:limit]
		final = false
	}
	var flags byte
	if final {
		flags = EndStreamFlag
	}
	if len(data) != 0 || final {
		if err := c.writeFrame(&Frame{DataFrameType, flags, s.id, data}); err != nil {
			return 0, err
		}
	}
	c.windowSend -= int64(len(data))
	s.windowSend -= int64(len(data))
	return len(data), nil
}

// WriteData sends payload bytes on a stream, returning how many were
// actually written: under HTTP/2 flow control the write may be cut short, in
// which case the rest must be retried after OnFlowIncrease.
func (c *Connection) WriteData(sid uint32, data []byte, final bool) (int, error) {
	if c.state == stateClosed {
		return 0, disconnectError("connection closed")
	}
	s := c.findStream(sid)
	if s == nil || s.wState != streamData {
		return 0, invalidStreamError("this stream is not writable")
	}

	var n int
	var err error
	if c.mode == modeHTTP2 {
		n, err = c.writeDataH2(s, data, final)
		final = final && n == len(data)
	} else {
		n, err = len(data), c.writeDataH1(s, data, final)
	}
	if err != nil {
		return 0, err
	}
	if final {
		if err := c.discardRemainingPayload(s); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// WritePush promises a pushed request on a child of the given stream and
// plays the request back to the host as if the peer had sent it. Pushing is
// silently skipped when the peer disabled it or the stream is gone: pushed
// requests are safe, so whether one goes out never matters.
func (c *Connection) WritePush(sid uint32, m *Message) error {
	if c.state == stateClosed {
		return disconnectError("connection closed")
	}
	if c.client {
		return assertionError("clients can't push")
	}
	if c.mode != modeHTTP2 || c.settings[sideRemote].EnablePush == 0 || c.streamIsLocal(sid) {
		return nil
	}
	s := c.findStream(sid)
	if s == nil || s.wState == streamClosed {
		return nil
	}

	childID := c.NextStream()
	child, err := c.newStream(childID, true)
	if err != nil {
		return err
	}

	if err := c.encoder.encode([]Header{{":method", m.Method}, {":path", m.Path}}); err != nil {
		return protocolError("hpack: %v", err)
	}
	if err := c.encoder.encode(m.Headers); err != nil {
		return protocolError("hpack: %v", err)
	}
	var payload []byte
	payload = binary.BigEndian.AppendUint32(payload, childID)
	payload = append(payload, c.encoder.take()...)
	if err := c.writeFrame(&Frame{PushPromiseFrameType, EndHeadersFlag, sid, payload}); err != nil {
		return err
	}

	if err := c.fireMessageHead(child.id, m); err != nil {
		return err
	}
	return c.fireMessageTail(child.id, nil)
}

// WriteReset aborts a stream with RST_STREAM, or the whole connection with
// GOAWAY when sid is 0. In HTTP/1 mode there is nothing to send; closing the
// transport is the host's job.
func (c *Connection) WriteReset(sid uint32, code ResetCode) error {
	if c.mode != modeHTTP2 {
		return nil
	}
	if sid == 0 {
		return c.writeGoaway(code)
	}
	s := c.findStream(sid)
	if s == nil {
		return nil // idle streams have already been reset
	}
	return c.writeRSTStream(s, code)
}

// WritePing sends a PING with the given 8 bytes of payload; the answer
// arrives through OnPong.
func (c *Connection) WritePing(data [8]byte) error {
	if c.mode != modeHTTP2 {
		return assertionError("cannot ping HTTP/1.x endpoints")
	}
	return c.writeFrame(&Frame{PingFrameType, 0, 0, data[:]})
}

// WriteFrame sends a raw frame. DATA is rejected since it would bypass flow
// control accounting; use WriteData.
func (c *Connection) WriteFrame(f *Frame) error {
	if c.mode != modeHTTP2 {
		return assertionError("cannot send HTTP2 frames to HTTP/1.x endpoints")
	}
	if f.Type == DataFrameType {
		return assertionError("cannot send flow-controlled DATA frames this way")
	}
	return c.writeFrame(f)
}

// OpenFlow advances a stream's receive window by delta and announces it with
// a WINDOW_UPDATE. Only useful under manual flow control, where received
// payload bytes shrink the window until the host opens it back up.
func (c *Connection) OpenFlow(sid uint32, delta uint32) error {
	if c.mode != modeHTTP2 || sid == 0 || delta == 0 {
		return nil
	}
	s := c.findStream(sid)
	if s == nil {
		return nil
	}
	s.windowRecv += int64(delta)
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], delta)
	return c.writeFrame(&Frame{WindowUpdateFrameType, 0, sid, payload[:]})
}
