package supervisor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// lineDecoder converts raw child output to UTF-8. Undecodable bytes become
// U+FFFD; decoding never fails.
type lineDecoder struct {
	dec *encoding.Decoder
}

func newLineDecoder(name string) (*lineDecoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return &lineDecoder{}, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output encoding %q: %w", name, err)
	}
	return &lineDecoder{dec: enc.NewDecoder()}, nil
}

func (d *lineDecoder) decode(raw []byte) string {
	if d.dec != nil {
		if out, err := d.dec.Bytes(raw); err == nil {
			return strings.ToValidUTF8(string(out), string(utf8.RuneError))
		}
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}
