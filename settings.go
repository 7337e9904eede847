package osmium

import "encoding/binary"

// Settings ids as defined in RFC 7540 section 6.5.2.
const (
	settingHeaderTableSize      = 0x1
	settingEnablePush           = 0x2
	settingMaxConcurrentStreams = 0x3
	settingInitialWindowSize    = 0x4
	settingMaxFrameSize         = 0x5
	settingMaxHeaderListSize    = 0x6
	settingUndefined            = 0x7
)

// Settings is one side's SETTINGS snapshot.
type Settings struct {
	HeaderTableSize      uint32
	EnablePush           uint32
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

// Standard-defined pre-initial-SETTINGS values.
var settingsStandard = Settings{
	HeaderTableSize:      4096,
	EnablePush:           1,
	MaxConcurrentStreams: 1<<32 - 1,
	InitialWindowSize:    65535,
	MaxFrameSize:         16384,
	MaxHeaderListSize:    1<<32 - 1,
}

// A somewhat more conservative version assumed to be used by the remote side
// at first, in case we want to send frames before their SETTINGS arrive.
var settingsConservative = Settings{
	HeaderTableSize:      4096,
	EnablePush:           0,
	MaxConcurrentStreams: 100,
	InitialWindowSize:    65535,
	MaxFrameSize:         16384,
	MaxHeaderListSize:    1<<32 - 1,
}

// Actual values advertised in the first SETTINGS frame.
var settingsInitial = Settings{
	HeaderTableSize:      4096,
	EnablePush:           1,
	MaxConcurrentStreams: 1024,
	InitialWindowSize:    65535,
	MaxFrameSize:         16384,
	MaxHeaderListSize:    1<<32 - 1,
}

func (s *Settings) fields() [settingUndefined - 1]uint32 {
	return [...]uint32{
		s.HeaderTableSize,
		s.EnablePush,
		s.MaxConcurrentStreams,
		s.InitialWindowSize,
		s.MaxFrameSize,
		s.MaxHeaderListSize,
	}
}

func (s *Settings) setField(id uint16, value uint32) {
	switch id {
	case settingHeaderTableSize:
		s.HeaderTableSize = value
	case settingEnablePush:
		s.EnablePush = value
	case settingMaxConcurrentStreams:
		s.MaxConcurrentStreams = value
	case settingInitialWindowSize:
		s.InitialWindowSize = value
	case settingMaxFrameSize:
		s.MaxFrameSize = value
	case settingMaxHeaderListSize:
		s.MaxHeaderListSize = value
	}
}

// encodeSettingsDelta serializes the difference between two snapshots as
// SETTINGS frame payload records: (uint16 id, uint32 value) each.
func encodeSettingsDelta(old, new *Settings) []byte {
	of, nf := old.fields(), new.fields()
	var payload []byte
	for i := range of {
		if of[i] == nf[i] {
			continue
		}
		var rec [6]byte
		binary.BigEndian.PutUint16(rec[0:2], uint16(i+1))
		binary.BigEndian.PutUint32(rec[2:6], nf[i])
		payload = append(payload, rec[:]...)
	}
	return payload
}

func (c *Connection) validateSettings(s *Settings) error {
	if s.EnablePush != 0 && s.EnablePush != 1 {
		return assertionError("enable_push neither 0 nor 1")
	}
	if s.InitialWindowSize > 0x7FFFFFFF {
		return assertionError("initial_window_size too big (max 2^31-1)")
	}
	if s.MaxFrameSize < 16384 || s.MaxFrameSize > 16777215 {
		return assertionError("max_frame_size out of bounds (2^14..2^24-1)")
	}
	return nil
}

// Configure replaces the local SETTINGS. If the connection already operates
// in HTTP/2 mode, the delta is announced to the peer as a SETTINGS frame;
// otherwise it is folded into the initial frame sent during the handshake.
func (c *Connection) Configure(s Settings) error {
	if err := c.validateSettings(&s); err != nil {
		return err
	}
	if c.mode == modeHTTP2 && c.state != stateH2Init {
		if err := c.writeSettingsDelta(&c.settings[sideLocal], &s); err != nil {
			return err
		}
	}
	c.decoder.setLimit(s.HeaderTableSize)
	c.settings[sideLocal] = s
	return nil
}
