package osmium

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// headerEncoder wraps the HPACK encoder with the byte accumulator the frame
// layer serializes from.
type headerEncoder struct {
	buf bytes.Buffer
	enc *hpack.Encoder
}

func newHeaderEncoder(tableSize uint32) *headerEncoder {
	e := &headerEncoder{}
	e.enc = hpack.NewEncoder(&e.buf)
	e.enc.SetMaxDynamicTableSize(tableSize)
	return e
}

// setLimit caps the dynamic table per the peer's SETTINGS_HEADER_TABLE_SIZE.
func (e *headerEncoder) setLimit(n uint32) {
	e.enc.SetMaxDynamicTableSize(n)
}

func (e *headerEncoder) encode(headers []Header) error {
	for _, h := range headers {
		if err := e.enc.WriteField(hpack.HeaderField{Name: h.Name, Value: h.Value}); err != nil {
			return err
		}
	}
	return nil
}

// take returns the accumulated block and resets the accumulator.
func (e *headerEncoder) take() []byte {
	block := append([]byte(nil), e.buf.Bytes()...)
	e.buf.Reset()
	return block
}

// headerDecoder wraps the HPACK decoder, collecting fields of one header
// block at a time. Decoding always runs to completion even for messages that
// end up discarded: skipping a block would desynchronize the dynamic table.
type headerDecoder struct {
	dec      *hpack.Decoder
	fields   []Header
	overflow bool
}

func newHeaderDecoder(tableSize uint32) *headerDecoder {
	d := &headerDecoder{}
	d.dec = hpack.NewDecoder(tableSize, func(f hpack.HeaderField) {
		if len(d.fields) >= maxHeaders {
			d.overflow = true
			return
		}
		d.fields = append(d.fields, Header{f.Name, f.Value})
	})
	return d
}

// setLimit adjusts the largest table size the peer may switch to, following
// the locally advertised SETTINGS_HEADER_TABLE_SIZE.
func (d *headerDecoder) setLimit(n uint32) {
	d.dec.SetAllowedMaxDynamicTableSize(n)
}

// decode consumes one complete header block and returns its field list.
func (d *headerDecoder) decode(block []byte) ([]Header, error) {
	d.fields = nil
	d.overflow = false
	if _, err := d.dec.Write(block); err != nil {
		return nil, err
	}
	if err := d.dec.Close(); err != nil {
		return nil, err
	}
	if d.overflow {
		return nil, protocolError("too many headers in one block")
	}
	fields := d.fields
	d.fields = nil
	return fields, nil
}
