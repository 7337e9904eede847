package osmium

import (
	"bytes"
	"encoding/binary"
)

// Kind selects which side of the connection this engine plays.
type Kind int

const (
	Server Kind = iota
	Client
)

// Version is the protocol the host selected for Begin. There is no
// negotiation here: with TLS the host knows the answer from ALPN, and
// cleartext connections start as HTTP/1 and may upgrade.
type Version int

const (
	HTTP1 Version = 1
	HTTP2 Version = 2
)

type connMode uint8

const (
	modeUninit connMode = iota
	modeHTTP1
	modeHTTP2
)

type connState uint8

// Top-level receive states. Handlers return statePending to wait for more
// input or the next state to run; errors unwind out of Consume.
const (
	statePending connState = iota
	stateClosed
	stateH2Init
	stateH2Preface
	stateH2Settings
	stateH2Frame
	stateH1Head
	stateH1Body
	stateH1Tail
	stateH1Chunk
	stateH1ChunkBody
	stateH1ChunkTail
	stateH1Trailers
)

// Config holds the behavior switches that must be set before Begin.
type Config struct {
	// DisallowH2Upgrade refuses "Upgrade: h2c" requests.
	DisallowH2Upgrade bool
	// DisallowH2PriorKnowledge refuses cleartext connections that start
	// directly with the HTTP/2 preface.
	DisallowH2PriorKnowledge bool
	// ManualFlowControl leaves stream receive windows to OpenFlow instead of
	// replenishing them as data arrives.
	ManualFlowControl bool
}

// Connection is a socketless HTTP/1.1 + HTTP/2 engine for one connection.
// The host feeds inbound bytes through Consume and receives outbound bytes
// and events through the Callbacks; the engine itself never touches I/O.
// A Connection is not safe for concurrent use.
type Connection struct {
	cb     Callbacks
	config Config

	client bool
	mode   connMode
	state  connState

	// settings[sideRemote] is the peer's last SETTINGS snapshot,
	// settings[sideLocal] what we advertise.
	settings [2]Settings

	// Connection-level flow windows (HTTP/2 only).
	windowRecv int64
	windowSend int64

	encoder *headerEncoder
	decoder *headerDecoder

	buffer  buffer
	streams map[uint32]*stream

	lastStream  [2]uint32
	streamCount [2]uint32

	// Last remote stream id covered by a sent GOAWAY; 0 if none was sent.
	goawaySent uint32

	recentlyReset     [resetHistory]resetEntry
	recentlyResetNext int

	// HTTP/1 payload countdown: -1 while reading chunked bodies, -2 for
	// read-until-EOF after a 101 response.
	remainingH1Payload int64
}

// NewConnection creates an idle connection. cfg may forbid the h2c upgrade
// paths or switch to manual flow control; the zero value allows both kinds
// of cleartext upgrade and lets the engine manage receive windows itself.
func NewConnection(kind Kind, cfg Config, cb Callbacks) *Connection {
	c := &Connection{
		cb:         cb,
		config:     cfg,
		client:     kind == Client,
		state:      stateClosed,
		windowRecv: int64(settingsStandard.InitialWindowSize),
		windowSend: int64(settingsStandard.InitialWindowSize),
		streams:    make(map[uint32]*stream),
	}
	c.settings[sideRemote] = settingsConservative
	c.settings[sideLocal] = settingsInitial
	c.decoder = newHeaderDecoder(settingsInitial.HeaderTableSize)
	c.encoder = newHeaderEncoder(settingsStandard.HeaderTableSize)
	return c
}

// Begin transitions the idle connection into the selected protocol and
// performs any pending handshake output (preface, initial SETTINGS).
func (c *Connection) Begin(version Version) error {
	if c.state != stateClosed || c.mode != modeUninit {
		return assertionError("Begin called twice")
	}
	if version == HTTP2 {
		c.state = stateH2Init
	} else {
		c.state = stateH1Head
		c.mode = modeHTTP1
	}
	return c.Consume(nil)
}

// Consume feeds inbound bytes and advances the state machine as far as the
// buffered data allows, firing callbacks along the way. An error return
// generally means the connection is no longer usable.
func (c *Connection) Consume(data []byte) error {
	c.buffer.append(data)
	for {
		next, err := c.step()
		if err != nil {
			return err
		}
		if next == statePending {
			return nil
		}
		c.state = next
	}
}

func (c *Connection) step() (connState, error) {
	switch c.state {
	case stateClosed:
		return 0, disconnectError("connection closed")
	case stateH2Init:
		return c.whenH2Init()
	case stateH2Preface:
		return c.whenH2Preface()
	case stateH2Settings:
		return c.whenH2Settings()
	case stateH2Frame:
		return c.whenH2Frame()
	case stateH1Head:
		return c.whenH1Head()
	case stateH1Body, stateH1ChunkBody:
		return c.whenH1Body()
	case stateH1Tail:
		return c.whenH1Tail()
	case stateH1Chunk:
		return c.whenH1Chunk()
	case stateH1ChunkTail:
		return c.whenH1ChunkTail()
	case stateH1Trailers:
		return c.whenH1Trailers()
	default:
		return 0, assertionError("corrupt connection state %d", c.state)
	}
}

// Shutdown starts a graceful termination by announcing GOAWAY(NO_ERROR).
func (c *Connection) Shutdown() error {
	return c.WriteReset(0, CodeNoError)
}

// EOF tells the engine the peer closed its end. In HTTP/2 mode every stream
// ends; a half-read HTTP/1 message makes the termination unclean.
func (c *Connection) EOF() error {
	if c.mode != modeHTTP2 {
		if s := c.h1Stream(); s != nil && s.rState != streamClosed {
			return disconnectError("unclean HTTP/1.x termination")
		}
		return nil
	}
	// h2 won't work over half-closed connections due to pings and flow
	// control, so drop everything.
	c.state = stateClosed
	for _, s := range c.streams {
		if err := c.endStream(s); err != nil {
			return err
		}
	}
	return nil
}

// NextStream returns the id the next locally initiated stream would get.
func (c *Connection) NextStream() uint32 {
	last := c.lastStream[sideLocal]
	if c.client {
		return (last + 1) | 1
	}
	return last + 2
}

// h1Stream is the stream of the HTTP/1 message currently being read: the
// last local stream for clients (the request we sent), the last remote one
// for servers.
func (c *Connection) h1Stream() *stream {
	return c.findStream(c.lastStream[side(c.client)])
}

func (c *Connection) whenH2Init() (connState, error) {
	c.mode = modeHTTP2
	if c.client {
		if err := c.fireWritev([]byte(ClientPreface)); err != nil {
			return 0, err
		}
	}
	if err := c.writeSettingsDelta(&settingsStandard, &c.settings[sideLocal]); err != nil {
		return 0, err
	}
	return stateH2Preface, nil
}

func (c *Connection) whenH2Preface() (connState, error) {
	if !c.client {
		buf := c.buffer.bytes()
		n := len(buf)
		if n > len(ClientPreface) {
			n = len(ClientPreface)
		}
		if !bytes.Equal(buf[:n], []byte(ClientPreface)[:n]) {
			return 0, protocolError("invalid HTTP 2 client preface")
		}
		if c.buffer.size() < len(ClientPreface) {
			return statePending, nil
		}
		c.buffer.shift(len(ClientPreface))
	}
	return stateH2Settings, nil
}

func (c *Connection) whenH2Settings() (connState, error) {
	if c.buffer.size() < 5 {
		return statePending, nil
	}
	buf := c.buffer.bytes()
	if buf[3] != SettingsFrameType || buf[4] != 0 {
		return 0, protocolError("invalid HTTP 2 preface: no initial SETTINGS")
	}
	length := int(buf[0])<<16 | int(buf[1])<<8 | int(buf[2])
	if length > int(settingsInitial.MaxFrameSize) {
		// The peer couldn't have ACKed our settings yet.
		return 0, protocolError("invalid HTTP 2 preface: initial SETTINGS too big")
	}
	if c.buffer.size() < 9+length {
		return statePending, nil
	}
	// Now that the handshake holds, received values apply as deltas to the
	// standard-defined defaults rather than to the conservative assumption.
	c.settings[sideRemote] = settingsStandard
	return stateH2Frame, nil
}

func (c *Connection) whenH2Frame() (connState, error) {
	base := c.buffer.bytes()
	if len(base) < 9 {
		return statePending, nil
	}
	length := int(base[0])<<16 | int(base[1])<<8 | int(base[2])
	if length > int(c.settings[sideLocal].MaxFrameSize) {
		return 0, c.connError(CodeFrameSizeError, "frame too big")
	}
	if len(base) < 9+length {
		return statePending, nil
	}

	f := Frame{base[3], base[4], binary.BigEndian.Uint32(base[5:9]) & 0x7FFFFFFF, base[9 : 9+length]}
	consumed := 9 + length

	if (f.Type == HeadersFrameType || f.Type == PushPromiseFrameType) && f.Flags&EndHeadersFlag == 0 {
		// Merge the contiguous CONTINUATION run into one header block. No
		// other frame may interleave, and the run is capped both in count
		// and, via max_frame_size, in total memory.
		payload := append([]byte(nil), f.Payload...)
		offset := consumed
		for i := 1; ; i++ {
			if i > maxContinuations {
				return 0, c.connError(CodeEnhanceYourCalm, "too many CONTINUATIONs")
			}
			if len(base) < offset+9 {
				return statePending, nil
			}
			size := int(base[offset])<<16 | int(base[offset+1])<<8 | int(base[offset+2])
			if size > int(c.settings[sideLocal].MaxFrameSize) {
				return 0, c.connError(CodeFrameSizeError, "frame too big")
			}
			if base[offset+3] != ContinuationFrameType {
				return 0, c.connError(CodeProtocolError, "expected CONTINUATION")
			}
			flags := base[offset+4]
			if flags&^EndHeadersFlag != 0 {
				return 0, c.connError(CodeProtocolError, "invalid CONTINUATION flags")
			}
			if binary.BigEndian.Uint32(base[offset+5:offset+9])&0x7FFFFFFF != f.Stream {
				return 0, c.connError(CodeProtocolError, "invalid CONTINUATION stream")
			}
			if len(base) < offset+9+size {
				return statePending, nil
			}
			payload = append(payload, base[offset+9:offset+9+size]...)
			offset += 9 + size
			if flags != 0 {
				break
			}
		}
		f.Flags |= EndHeadersFlag
		f.Payload = payload
		consumed = offset
	}

	c.buffer.shift(consumed)
	if err := c.fireFrame(&f); err != nil {
		return 0, err
	}
	// Frames of unknown types must be ignored and discarded.
	if f.Type < unknownFrameType {
		if err := frameHandlers[f.Type](c, c.findStream(f.Stream), &f); err != nil {
			return 0, err
		}
	}
	return stateH2Frame, nil
}
