package osmium

import (
	"bytes"
	"strings"

	"osmium/h1head"
)

const switchingProtocols = "HTTP/1.1 101 Switching Protocols\r\nconnection: upgrade\r\nupgrade: h2c\r\n\r\n"

// removeChunkedTE strips a trailing "chunked" token so the rest of the value
// (e.g. "gzip") may pass through as other transfer encodings. Assuming the
// message is valid, chunked can only be the last encoding listed.
func removeChunkedTE(v string) string {
	if !strings.HasSuffix(v, "chunked") {
		return v
	}
	v = strings.TrimRight(v[:len(v)-len("chunked")], " ")
	return strings.TrimSuffix(v, ",")
}

func (c *Connection) whenH1Head() (connState, error) {
	if c.buffer.size() == 0 {
		return statePending, nil
	}

	s := c.h1Stream()
	if c.client {
		if s == nil || s.rState != streamHeaders {
			return 0, protocolError("server sent an HTTP/1.x response, but there was no request")
		}
	} else {
		if s == nil {
			// Prior-knowledge h2c: only before any h1 request was received.
			if !c.config.DisallowH2PriorKnowledge && c.lastStream[sideRemote] == 0 {
				buf := c.buffer.bytes()
				n := len(buf)
				if n > len(ClientPreface) {
					n = len(ClientPreface)
				}
				if bytes.Equal(buf[:n], []byte(ClientPreface)[:n]) {
					if c.buffer.size() < len(ClientPreface) {
						return statePending, nil
					}
					return stateH2Init, nil
				}
			}
			var err error
			if s, err = c.newStream((c.lastStream[sideRemote]+1)|1, false); err != nil {
				return 0, err
			}
		}
		if s.rState != streamHeaders {
			return 0, wouldBlockError("already handling an HTTP/1.x message")
		}
	}

	var m Message
	var rawHeaders []h1head.Header
	var consumed, minor int
	if c.client {
		var resp h1head.Response
		consumed = h1head.ParseResponse(c.buffer.bytes(), &resp)
		m.Code = resp.Code
		m.Method = string(resp.Reason)
		minor = resp.Minor
		rawHeaders = resp.Headers
	} else {
		var req h1head.Request
		consumed = h1head.ParseRequest(c.buffer.bytes(), &req)
		m.Method = string(req.Method)
		m.Path = string(req.Path)
		minor = req.Minor
		rawHeaders = req.Headers
	}

	if consumed == h1head.Incomplete {
		if c.buffer.size() > (maxContinuations+1)*int(c.settings[sideLocal].MaxFrameSize) {
			return 0, protocolError("HTTP/1.x message too big")
		}
		return statePending, nil
	}
	if consumed == h1head.Malformed {
		return 0, protocolError("bad HTTP/1.x message")
	}
	if minor != 0 && minor != 1 {
		return 0, protocolError("HTTP/1.%d not supported", minor)
	}

	upgrade := false
	seenContentLength := false
	c.remainingH1Payload = 0

	headers := make([]Header, 0, len(rawHeaders)+2)
	if !c.client {
		// The host is expected to overwrite :scheme above the engine; there
		// is no way to know it down here.
		headers = append(headers, Header{":scheme", "unknown"}, Header{":authority", "unknown"})
	}
	for _, rh := range rawHeaders {
		name := make([]byte, len(rh.Name))
		for i := 0; i < len(rh.Name); i++ {
			if name[i] = headerTransform[rh.Name[i]]; name[i] == 0 {
				return 0, protocolError("invalid character in h1 header")
			}
		}
		h := Header{string(name), string(rh.Value)}

		if !c.client && h.Name == "host" {
			headers[1].Value = h.Value
			continue
		} else if h.Name == "http2-settings" {
			// Reserved for the h2c upgrade handshake.
			continue
		} else if h.Name == "upgrade" {
			if c.mode != modeHTTP1 {
				// Already switching to h2c; don't surface nested upgrades.
				continue
			} else if h.Value == "h2c" {
				if c.config.DisallowH2Upgrade || c.client || s.id != 1 || upgrade {
					continue
				}
				// Technically we should refuse unless HTTP2-Settings is
				// present; we let that slide.
				if err := c.fireWritev([]byte(switchingProtocols)); err != nil {
					return 0, err
				}
				if _, err := c.whenH2Init(); err != nil {
					return 0, err
				}
				continue
			} else if !c.client {
				upgrade = true
			}
		} else if h.Name == "content-length" {
			if c.remainingH1Payload == -1 {
				continue // chunked transfer-encoding wins
			}
			if seenContentLength {
				return 0, protocolError("multiple content-lengths")
			}
			n, ok := parseUint(h.Value)
			if !ok {
				return 0, protocolError("invalid content-length")
			}
			seenContentLength = true
			c.remainingH1Payload = int64(n)
		} else if h.Name == "transfer-encoding" {
			if h.Value == "identity" {
				continue
			}
			// Any non-identity transfer-encoding requires chunked, which
			// should also be listed last.
			c.remainingH1Payload = -1
			if h.Value = removeChunkedTE(h.Value); h.Value == "" {
				continue
			}
		}

		headers = append(headers, h)
	}
	m.Headers = headers

	if m.Code == 101 {
		// Everything else on the connection is stream 1 payload now.
		c.remainingH1Payload = -2
	} else if isInformational(m.Code) && c.remainingH1Payload != 0 {
		return 0, protocolError("informational response with a payload")
	}

	// A HEAD response has header fields describing a payload it never has.
	if s.readingHeadResponse {
		c.remainingH1Payload = 0
	}

	// If OnMessageHead triggers asynchronous handling, it is expected to
	// block until either a 101 has been written or the upgrade is declined.
	if err := c.fireMessageHead(s.id, &m); err != nil {
		return 0, err
	}
	if upgrade {
		if err := c.fireUpgrade(); err != nil {
			return 0, err
		}
	}

	c.buffer.shift(consumed)

	if isInformational(m.Code) && m.Code != 101 {
		return stateH1Head, nil
	}

	if s = c.findStream(s.id); s != nil {
		s.rState = streamData
	}
	switch {
	case c.remainingH1Payload == -1:
		return stateH1Chunk, nil
	case c.remainingH1Payload != 0:
		return stateH1Body, nil
	default:
		return stateH1Tail, nil
	}
}

// whenH1Body drains a counted body, a chunk's contents, or (after a 101)
// everything until EOF; stateH1Body and stateH1ChunkBody share it.
func (c *Connection) whenH1Body() (connState, error) {
	for c.remainingH1Payload != 0 {
		if c.buffer.size() == 0 {
			return statePending, nil
		}
		b := c.buffer.bytes()
		if c.remainingH1Payload > 0 {
			if int64(len(b)) > c.remainingH1Payload {
				b = b[:c.remainingH1Payload]
			}
			c.remainingH1Payload -= int64(len(b))
		}
		c.buffer.shift(len(b))
		if s := c.h1Stream(); s != nil {
			if err := c.fireMessageData(s.id, b); err != nil {
				return 0, err
			}
		}
	}
	if c.state == stateH1Body {
		return stateH1Tail, nil
	}
	return stateH1ChunkTail, nil
}

func (c *Connection) whenH1Tail() (connState, error) {
	if s := c.h1Stream(); s != nil {
		id := s.id
		if err := c.fireMessageTail(id, nil); err != nil {
			return 0, err
		}
		// The callback may have reset the stream; look it up again.
		if s = c.findStream(id); s != nil {
			s.rState = streamClosed
			if s.wState == streamClosed {
				if err := c.endStream(s); err != nil {
					return 0, err
				}
			}
		}
	}
	if c.mode == modeHTTP2 {
		// An h2c upgrade happened while reading this message; the client
		// preface comes next.
		return stateH2Preface, nil
	}
	return stateH1Head, nil
}

func hexDigit(ch byte) int {
	switch {
	case '0' <= ch && ch <= '9':
		return int(ch - '0')
	case 'A' <= ch && ch <= 'F':
		return int(ch-'A') + 10
	case 'a' <= ch && ch <= 'f':
		return int(ch-'a') + 10
	default:
		return -1
	}
}

func (c *Connection) whenH1Chunk() (connState, error) {
	buf := c.buffer.bytes()
	eol := bytes.IndexByte(buf, '\n')
	if eol < 0 {
		if c.buffer.size() >= int(c.settings[sideLocal].MaxFrameSize) {
			return 0, protocolError("too many h1 chunk extensions")
		}
		return statePending, nil
	}

	var length, prev uint64
	i := 0
	for {
		ch := buf[i]
		if ch == '\r' || ch == '\n' || ch == ';' {
			if i == 0 {
				return 0, protocolError("invalid h1 chunk length")
			}
			break
		}
		d := hexDigit(ch)
		if d < 0 {
			return 0, protocolError("invalid h1 chunk length")
		}
		prev = length
		length = length*16 + uint64(d)
		if length < prev || length > 1<<62 {
			return 0, protocolError("invalid h1 chunk length")
		}
		i++
	}

	var consumed int
	if buf[i] == ';' {
		// Chunk extensions are skipped to the end of the line.
		consumed = eol + 1
	} else {
		if buf[i] != '\r' || buf[i+1] != '\n' {
			return 0, protocolError("invalid h1 line separator")
		}
		consumed = i + 2
	}
	c.buffer.shift(consumed)
	c.remainingH1Payload = int64(length)
	if length == 0 {
		return stateH1Trailers, nil
	}
	return stateH1ChunkBody, nil
}

func (c *Connection) whenH1ChunkTail() (connState, error) {
	if c.buffer.size() < 2 {
		return statePending, nil
	}
	buf := c.buffer.bytes()
	if buf[0] != '\r' || buf[1] != '\n' {
		return 0, protocolError("invalid h1 chunk terminator")
	}
	c.buffer.shift(2)
	return stateH1Chunk, nil
}

func (c *Connection) whenH1Trailers() (connState, error) {
	// Trailer fields are not supported: only the terminating CRLF of an empty
	// trailer section is accepted, and anything else is a protocol error.
	next, err := c.whenH1ChunkTail()
	if err != nil {
		return 0, err
	}
	if next == statePending {
		return statePending, nil
	}
	return stateH1Tail, nil
}
