package proto

import "github.com/indigo-web/utils/uf"

type Proto uint8

const (
	Unknown Proto = iota
	HTTP10
	HTTP11
)

func (p Proto) String() string {
	lut := [...]string{HTTP10: "HTTP/1.0", HTTP11: "HTTP/1.1"}
	if int(p) >= len(lut) {
		return ""
	}

	return lut[p]
}

const (
	protoTokenLength = len("HTTP/x.x")
	httpScheme       = "HTTP/"
)

// FromBytes parses the fixed-size 8-byte protocol token, e.g. HTTP/1.1.
func FromBytes(raw []byte) Proto {
	if len(raw) != protoTokenLength || uf.B2S(raw[:len(httpScheme)]) != httpScheme || raw[6] != '.' {
		return Unknown
	}

	return Parse(raw[5]-'0', raw[7]-'0')
}

func Parse(major, minor uint8) Proto {
	if major == 1 {
		switch minor {
		case 0:
			return HTTP10
		case 1:
			return HTTP11
		}
	}

	return Unknown
}
