package stanza

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned when an XML stanza cannot be decoded.
var ErrMalformed = errors.New("malformed stanza")

// DecodeXML reads one stanza element from r. Element and child names are
// returned in Clark notation; only the text of direct children is kept.
func DecodeXML(r io.Reader) (Stanza, error) {
	dec := xml.NewDecoder(r)
	var st Stanza
	depth := 0
	var (
		child string
		text  strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			if depth != 0 || st.Name == "" {
				return Stanza{}, fmt.Errorf("%w: unexpected end of input", ErrMalformed)
			}
			return st, nil
		}
		if err != nil {
			return Stanza{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if st.Name != "" {
					return Stanza{}, fmt.Errorf("%w: more than one root element", ErrMalformed)
				}
				st.Name = clark(t.Name)
				st.Attributes = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
						continue
					}
					st.Attributes[a.Name.Local] = a.Value
				}
			case 2:
				child = clark(t.Name)
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				st.Value = append(st.Value, Element{Key: child, Value: text.String()})
			}
			depth--
			if depth == 0 {
				return st, nil
			}
		}
	}
}

func clark(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}
