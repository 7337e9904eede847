package osmium

import (
	"encoding/binary"
	"reflect"
	"testing"
)

// expectStreamReset feeds one HEADERS frame and expects the stream to be
// reset with PROTOCOL_ERROR instead of producing a message.
func expectStreamReset(t *testing.T, block []byte) {
	t.Helper()
	c, r := h2Server(t, Config{})
	if err := c.Consume(rawFrame(HeadersFrameType, EndHeadersFlag, 1, block)); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	frames := parseWire(t, r.out.Bytes())
	var rst *wireFrame
	for _, f := range frames {
		if f.Type == RSTStreamFrameType {
			f := f
			rst = &f
		}
	}
	if rst == nil || ResetCode(binary.BigEndian.Uint32(rst.Payload)) != CodeProtocolError {
		t.Fatalf("expected RST_STREAM(PROTOCOL_ERROR), got %+v", frames)
	}
	for _, e := range r.events {
		if e[0] == 'h' {
			t.Fatalf("no message should be delivered, events %v", r.events)
		}
	}
}

func TestUppercaseHeaderNameRejected(t *testing.T) {
	expectStreamReset(t, encodeBlock(
		Header{":method", "GET"}, Header{":scheme", "http"}, Header{":path", "/"},
		Header{"X-Bad", "v"},
	))
}

func TestConnectionHeaderRejected(t *testing.T) {
	expectStreamReset(t, encodeBlock(
		Header{":method", "GET"}, Header{":scheme", "http"}, Header{":path", "/"},
		Header{"connection", "keep-alive"},
	))
}

func TestTEHeaderMustBeTrailers(t *testing.T) {
	expectStreamReset(t, encodeBlock(
		Header{":method", "GET"}, Header{":scheme", "http"}, Header{":path", "/"},
		Header{"te", "gzip"},
	))

	c, r := h2Server(t, Config{})
	ok := encodeBlock(
		Header{":method", "GET"}, Header{":scheme", "http"}, Header{":path", "/"},
		Header{"te", "trailers"},
	)
	if err := c.Consume(rawFrame(HeadersFrameType, EndHeadersFlag, 1, ok)); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if r.heads[1] == nil {
		t.Fatalf("te: trailers is legal, events %v", r.events)
	}
}

func TestUnknownPseudoHeaderRejected(t *testing.T) {
	expectStreamReset(t, encodeBlock(
		Header{":method", "GET"}, Header{":scheme", "http"}, Header{":path", "/"},
		Header{":nonsense", "x"},
	))
}

func TestDuplicatePseudoHeaderRejected(t *testing.T) {
	expectStreamReset(t, encodeBlock(
		Header{":method", "GET"}, Header{":method", "POST"},
		Header{":scheme", "http"}, Header{":path", "/"},
	))
}

func TestPseudoHeaderAfterRegularRejected(t *testing.T) {
	expectStreamReset(t, encodeBlock(
		Header{":method", "GET"}, Header{":scheme", "http"},
		Header{"accept", "*/*"}, Header{":path", "/"},
	))
}

func TestRequestWithoutSchemeRejected(t *testing.T) {
	expectStreamReset(t, encodeBlock(
		Header{":method", "GET"}, Header{":path", "/"},
	))
}

func TestConnectRelaxesPseudoRequirements(t *testing.T) {
	c, r := h2Server(t, Config{})
	block := encodeBlock(
		Header{":method", "CONNECT"}, Header{":authority", "example.com:443"},
	)
	if err := c.Consume(rawFrame(HeadersFrameType, EndHeadersFlag, 1, block)); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if m := r.heads[1]; m == nil || m.Method != "CONNECT" {
		t.Fatalf("CONNECT should be delivered, events %v", r.events)
	}
}

func TestBadContentLengthRejected(t *testing.T) {
	expectStreamReset(t, encodeBlock(
		Header{":method", "GET"}, Header{":scheme", "http"}, Header{":path", "/"},
		Header{"content-length", "12x"},
	))
}

func TestConflictingContentLengthsRejected(t *testing.T) {
	expectStreamReset(t, encodeBlock(
		Header{":method", "GET"}, Header{":scheme", "http"}, Header{":path", "/"},
		Header{"content-length", "3"}, Header{"content-length", "4"},
	))
}

func TestTrailers(t *testing.T) {
	c, r := h2Server(t, Config{})
	request := encodeBlock(
		Header{":method", "POST"}, Header{":scheme", "http"}, Header{":path", "/"},
	)
	trailers := encodeBlock(Header{"x-checksum", "abc"})
	var stream []byte
	stream = append(stream, rawFrame(HeadersFrameType, EndHeadersFlag, 1, request)...)
	stream = append(stream, rawFrame(DataFrameType, 0, 1, []byte("data"))...)
	stream = append(stream, rawFrame(HeadersFrameType, EndHeadersFlag|EndStreamFlag, 1, trailers)...)
	if err := c.Consume(stream); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	found := false
	for _, e := range r.events {
		if e == "tail 1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("trailers should fire the tail, events %v", r.events)
	}
}

func TestTrailersWithoutEndStreamRejected(t *testing.T) {
	c, _ := h2Server(t, Config{})
	request := encodeBlock(
		Header{":method", "POST"}, Header{":scheme", "http"}, Header{":path", "/"},
	)
	trailers := encodeBlock(Header{"x-checksum", "abc"})
	var stream []byte
	stream = append(stream, rawFrame(HeadersFrameType, EndHeadersFlag, 1, request)...)
	stream = append(stream, rawFrame(HeadersFrameType, EndHeadersFlag, 1, trailers)...)
	err := c.Consume(stream)
	if kind, ok := KindOf(err); !ok || kind != ErrProtocol {
		t.Fatalf("expected a protocol error, got %v", err)
	}
}

func TestTrailersWithPseudoHeadersReset(t *testing.T) {
	c, r := h2Server(t, Config{})
	request := encodeBlock(
		Header{":method", "POST"}, Header{":scheme", "http"}, Header{":path", "/"},
	)
	trailers := encodeBlock(Header{":status", "200"})
	var stream []byte
	stream = append(stream, rawFrame(HeadersFrameType, EndHeadersFlag, 1, request)...)
	stream = append(stream, rawFrame(HeadersFrameType, EndHeadersFlag|EndStreamFlag, 1, trailers)...)
	if err := c.Consume(stream); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	var rst bool
	for _, f := range parseWire(t, r.out.Bytes()) {
		if f.Type == RSTStreamFrameType {
			rst = true
		}
	}
	if !rst {
		t.Fatalf("pseudo-headers in trailers must reset the stream")
	}
}

func TestInformationalResponses(t *testing.T) {
	c, r := h2Client(t)
	req := &Message{Method: "GET", Path: "/", Headers: []Header{{":scheme", "http"}}}
	if err := c.WriteHead(1, req, true); err != nil {
		t.Fatalf("WriteHead: %v", err)
	}
	r.events = nil

	var stream []byte
	stream = append(stream, rawFrame(HeadersFrameType, EndHeadersFlag, 1, encodeBlock(Header{":status", "103"}))...)
	stream = append(stream, rawFrame(HeadersFrameType, EndHeadersFlag|EndStreamFlag, 1, encodeBlock(Header{":status", "204"}))...)
	if err := c.Consume(stream); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	want := []string{"head 1 103  ", "head 1 204  ", "tail 1", "end 1"}
	if !reflect.DeepEqual(r.events, want) {
		t.Fatalf("events = %v, want %v", r.events, want)
	}
}

func TestInformationalWithEndStreamReset(t *testing.T) {
	c, r := h2Client(t)
	req := &Message{Method: "GET", Path: "/", Headers: []Header{{":scheme", "http"}}}
	if err := c.WriteHead(1, req, true); err != nil {
		t.Fatalf("WriteHead: %v", err)
	}
	block := encodeBlock(Header{":status", "100"})
	if err := c.Consume(rawFrame(HeadersFrameType, EndHeadersFlag|EndStreamFlag, 1, block)); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	var rst bool
	for _, f := range parseWire(t, r.out.Bytes()) {
		if f.Type == RSTStreamFrameType {
			rst = true
		}
	}
	if !rst {
		t.Fatalf("1xx with END_STREAM must reset the stream")
	}
}

func TestHeaderTransformTable(t *testing.T) {
	for _, ch := range "abcdefghijklmnopqrstuvwxyz0123456789!#$%&'*+-.^_`|~" {
		if headerTransform[ch] != byte(ch) {
			t.Fatalf("%q should map to itself", ch)
		}
	}
	for ch := byte('A'); ch <= 'Z'; ch++ {
		if headerTransform[ch] != ch+32 {
			t.Fatalf("%q should map to lowercase", ch)
		}
	}
	for _, ch := range []byte{':', ' ', '(', ')', ',', '/', ';', '<', '=', '>', '?', '@', '[', ']', '{', '}', '"', 0, 127} {
		if headerTransform[ch] != 0 {
			t.Fatalf("%q should be rejected", ch)
		}
	}
}
