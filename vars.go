package osmium

/*
HTTP/2 protocol as defined in RFC 7540.

The basic flow is:
- Client connects and sends a connection preface (see ClientPreface)
- Both sides send a SETTINGS frame
- Communication proceeds with frames (see frame types below)

Each frame has a 9-byte header:
- Length (24 bits): Length of the frame payload
- Type (8 bits): Frame type (e.g., DATA, SETTINGS, PING, etc.)
- Flags (8 bits): Frame flags (e.g., ACK, END_STREAM, etc.)
- R (1 bit): Reserved bit
- Stream Identifier (31 bits): Identifies the stream the frame belongs to
*/

// Frame types
const (
	DataFrameType         byte = 0x0
	HeadersFrameType      byte = 0x1
	PriorityFrameType     byte = 0x2
	RSTStreamFrameType    byte = 0x3
	SettingsFrameType     byte = 0x4
	PushPromiseFrameType  byte = 0x5
	PingFrameType         byte = 0x6
	GoawayFrameType       byte = 0x7
	WindowUpdateFrameType byte = 0x8
	ContinuationFrameType byte = 0x9

	// Anything >= this is unknown and must be ignored.
	unknownFrameType byte = 0xA
)

// Flags for SETTINGS and PING frames
const AckFlag byte = 0x1

// Flags for HEADERS, PUSH_PROMISE and DATA frames
const (
	EndStreamFlag  byte = 0x1
	EndHeadersFlag byte = 0x4
	PaddedFlag     byte = 0x8
	PriorityFlag   byte = 0x20
)

// ResetCode is an RST_STREAM/GOAWAY error code (RFC 7540 section 7).
type ResetCode uint32

const (
	CodeNoError            ResetCode = 0x0
	CodeProtocolError      ResetCode = 0x1
	CodeInternalError      ResetCode = 0x2
	CodeFlowControlError   ResetCode = 0x3
	CodeSettingsTimeout    ResetCode = 0x4
	CodeStreamClosed       ResetCode = 0x5
	CodeFrameSizeError     ResetCode = 0x6
	CodeRefusedStream      ResetCode = 0x7
	CodeCancel             ResetCode = 0x8
	CodeCompressionError   ResetCode = 0x9
	CodeConnectError       ResetCode = 0xA
	CodeEnhanceYourCalm    ResetCode = 0xB
	CodeInadequateSecurity ResetCode = 0xC
	CodeHTTP11Required     ResetCode = 0xD
)

// ClientPreface is the fixed marker every HTTP/2 client sends first.
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

const (
	// maxContinuations bounds how many CONTINUATION frames a single header
	// block may span before the peer is told to calm down.
	maxContinuations = 8
	// maxHeaders caps the number of fields, pseudo-headers included, in one
	// decoded HTTP/2 header block.
	maxHeaders = 128
	// resetHistory is the number of recently reset streams remembered so
	// that in-flight frames from the peer can be tolerated.
	resetHistory = 16
)

const CRLF = "\r\n"
