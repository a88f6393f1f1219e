package photom

import (
	"fmt"
	"strings"

	"github.com/astrogo/fitsio"
)

// A Card is one header keyword. Value is a string, bool, int or
// float64, as for fitsio.
type Card struct {
	Name    string
	Value   interface{}
	Comment string
}

// Header is an ordered list of cards, as found on the first frame of a
// FrameSet and propagated onto its master.
type Header []Card

func (h Header) Get(name string) (Card, bool) {
	for _, c := range h {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Card{}, false
}

// Float returns a numeric card value, accepting either integer or
// floating point forms.
func (h Header) Float(name string) (float64, bool) {
	c, ok := h.Get(name)
	if !ok {
		return 0, false
	}
	return cardFloat(c.Value)
}

func cardFloat(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}

func (h Header) String() string {
	var sb strings.Builder
	for _, c := range h {
		fmt.Fprintf(&sb, "%-8s= %v", c.Name, c.Value)
		if c.Comment != "" {
			fmt.Fprintf(&sb, " / %s", c.Comment)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Keywords that describe the data layout. They are never copied from
// an input header, since the writer derives its own.
var structuralKeys = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true, "EXTEND": true, "END": true,
	"BZERO": true, "BSCALE": true, "PCOUNT": true, "GCOUNT": true, "XTENSION": true,
}

func isStructuralKey(name string) bool {
	name = strings.ToUpper(name)
	if structuralKeys[name] {
		return true
	}
	return strings.HasPrefix(name, "NAXIS")
}

func headerFromFits(fh *fitsio.Header) Header {
	h := Header{}
	for _, key := range fh.Keys() {
		card := fh.Get(key)
		if card == nil {
			continue
		}
		h = append(h, Card{Name: card.Name, Value: card.Value, Comment: card.Comment})
	}
	return h
}

// propagated returns the cards worth carrying over to a new file: no
// layout keywords, nothing named in `replace`, and no duplicate names
// except for COMMENT/HISTORY.
func (h Header) propagated(replace ...string) []fitsio.Card {
	skip := map[string]bool{}
	for _, r := range replace {
		skip[strings.ToUpper(r)] = true
	}

	seen := map[string]bool{}
	out := []fitsio.Card{}
	for _, c := range h {
		name := strings.ToUpper(strings.TrimSpace(c.Name))
		if name == "" || isStructuralKey(name) || skip[name] {
			continue
		}
		if name != "COMMENT" && name != "HISTORY" {
			if seen[name] {
				continue
			}
			seen[name] = true
		}
		out = append(out, fitsio.Card{Name: name, Value: c.Value, Comment: c.Comment})
	}
	return out
}
