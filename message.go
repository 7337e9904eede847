package osmium

import "strconv"

// Header is a single header field. Names are lowercase on both sides of the
// API; pseudo-headers (":authority", ":scheme") may appear at the front of
// the list.
type Header struct {
	Name  string
	Value string
}

// Message is a request or response head (or a trailer block). The recognised
// pseudo-headers are projected onto Code/Method/Path; ":authority" and
// ":scheme" stay in Headers.
type Message struct {
	// Code is the response status; 0 for requests.
	Code int
	// Method is the request method. On the server write side it doubles as
	// the HTTP/1 reason phrase, which is why it is free-form.
	Method  string
	Path    string
	Headers []Header
}

// headerTransform maps every byte of a valid header name to its lowercase
// form and every byte that may not appear in a name (including ':') to zero.
var headerTransform [256]byte

func init() {
	for ch := 'a'; ch <= 'z'; ch++ {
		headerTransform[ch] = byte(ch)
	}
	for ch := 'A'; ch <= 'Z'; ch++ {
		headerTransform[ch] = byte(ch) + ('a' - 'A')
	}
	for ch := '0'; ch <= '9'; ch++ {
		headerTransform[ch] = byte(ch)
	}
	for _, ch := range "!#$%&'*+-.^_`|~" {
		headerTransform[ch] = byte(ch)
	}
}

// parseUint is a strict decimal parser: anything but digits (or overflow)
// reports failure. The bool result follows the comma-ok convention.
func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

func isInformational(code int) bool {
	return 100 <= code && code < 200
}

// handleMessage validates a decoded header list and delivers the message.
// Called for HEADERS, PUSH_PROMISE and trailer blocks alike; which rules
// apply depends on the stream's read state.
func (c *Connection) handleMessage(s *stream, f *Frame, fields []Header) error {
	isResponse := c.client && f.Type != PushPromiseFrameType

	// Pseudo-header fields may only form a prefix of the block, and must not
	// appear in trailers at all.
	npseudo := 0
	for npseudo < len(fields) && len(fields[npseudo].Name) > 0 && fields[npseudo].Name[0] == ':' {
		if s.rState != streamHeaders {
			return c.writeRSTStream(s, CodeProtocolError)
		}
		npseudo++
	}

	m := &Message{}
	var hasScheme, hasAuthority bool
	for _, h := range fields[:npseudo] {
		switch {
		case isResponse && h.Name == ":status" && m.Code == 0:
			code, ok := parseUint(h.Value)
			if !ok || code == 0 || code > 0xFFFF {
				return c.writeRSTStream(s, CodeProtocolError)
			}
			m.Code = int(code)
		case !isResponse && h.Name == ":path" && m.Path == "":
			m.Path = h.Value
		case !isResponse && h.Name == ":method" && m.Method == "":
			m.Method = h.Value
		case !isResponse && h.Name == ":authority" && !hasAuthority:
			hasAuthority = true
			m.Headers = append(m.Headers, h)
		case !isResponse && h.Name == ":scheme" && !hasScheme:
			hasScheme = true
			m.Headers = append(m.Headers, h)
		default:
			// Unknown pseudo-header, or a duplicate of a recognised one.
			return c.writeRSTStream(s, CodeProtocolError)
		}
	}

	s.remainingPayload = -1
	var seenContentLength bool
	for _, h := range fields[npseudo:] {
		// Header field names must be lowercase and drawn from the token
		// charset prior to their encoding in HTTP/2.
		for i := 0; i < len(h.Name); i++ {
			if headerTransform[h.Name[i]] != h.Name[i] {
				return c.writeRSTStream(s, CodeProtocolError)
			}
		}
		// HTTP/2 does not use Connection, and allows TE only as "trailers".
		if h.Name == "connection" {
			return c.writeRSTStream(s, CodeProtocolError)
		}
		if h.Name == "te" && h.Value != "trailers" {
			return c.writeRSTStream(s, CodeProtocolError)
		}
		if h.Name == "content-length" {
			length, ok := parseUint(h.Value)
			if !ok || (seenContentLength && int64(length) != s.remainingPayload) {
				return c.writeRSTStream(s, CodeProtocolError)
			}
			seenContentLength = true
			s.remainingPayload = int64(length)
		}
		m.Headers = append(m.Headers, h)
	}

	if s.rState != streamHeaders {
		// A trailer block; END_STREAM was already checked by handleHeaders.
		return c.handleEndStream(s, m)
	}

	// Requests require :method, :path and :scheme, unless CONNECT; responses
	// require :status.
	if isResponse {
		if m.Code == 0 {
			return c.writeRSTStream(s, CodeProtocolError)
		}
	} else if m.Method != "CONNECT" && (m.Path == "" || m.Method == "" || !hasScheme) {
		return c.writeRSTStream(s, CodeProtocolError)
	}

	if f.Type == PushPromiseFrameType {
		return c.fireMessagePush(s.id, m, f.Stream)
	}

	if !isInformational(m.Code) {
		s.rState = streamData
	} else if f.Flags&EndStreamFlag != 0 || s.remainingPayload != -1 {
		// 1xx responses carry neither a payload nor END_STREAM; the stream
		// stays in the HEADERS read state for the real response.
		return c.writeRSTStream(s, CodeProtocolError)
	}

	if err := c.fireMessageHead(s.id, m); err != nil {
		return err
	}

	if f.Flags&EndStreamFlag != 0 {
		if s = c.findStream(f.Stream); s != nil {
			return c.handleEndStream(s, nil)
		}
	}
	return nil
}
