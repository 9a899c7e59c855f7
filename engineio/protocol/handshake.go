package protocol

// Handshake is the data of the open packet that starts every session.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval Duration `json:"pingInterval"`
	PingTimeout  Duration `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

func (h *Handshake) MarshalText() ([]byte, error) {
	if h.Upgrades == nil {
		h.Upgrades = []string{}
	}
	type handshake Handshake
	b, err := json.Marshal((*handshake)(h))
	if err != nil {
		return nil, ErrHandshakeEncode.F(err)
	}
	return b, nil
}

func (h *Handshake) UnmarshalText(p []byte) error {
	type handshake Handshake
	if err := json.Unmarshal(p, (*handshake)(h)); err != nil {
		return ErrHandshakeDecode.F(err)
	}
	if h.SID == "" {
		return ErrInvalidHandshake
	}
	return nil
}
