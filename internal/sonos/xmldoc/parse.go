package xmldoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TextKey holds character data of an element that also has attributes or children.
const TextKey = "#text"

// ErrEmptyDocument is returned when the input holds no root element.
var ErrEmptyDocument = errors.New("xml document has no root element")

type frame struct {
	name     string
	node     *Node
	text     strings.Builder
	hasAttrs bool
	hasKids  bool
}

// Parse converts an XML document into a Node tree rooted at a map holding the
// root element. Namespace prefixes are dropped from element and attribute names
// and namespace declarations are discarded.
func Parse(payload []byte) (*Node, error) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	root := NewMap()
	var stack []*frame

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch se := tok.(type) {
		case xml.StartElement:
			if len(stack) > 0 {
				stack[len(stack)-1].hasKids = true
			}
			f := &frame{name: se.Name.Local, node: NewMap()}
			for _, attr := range se.Attr {
				if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
					continue
				}
				f.node.Set(attr.Name.Local, NewScalar(attr.Value))
				f.hasAttrs = true
			}
			stack = append(stack, f)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(se)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse xml: unexpected end element %s", se.Name.Local)
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			value := f.finish()
			if len(stack) == 0 {
				root.Append(f.name, value)
				continue
			}
			stack[len(stack)-1].node.Append(f.name, value)
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("parse xml: unclosed element %s", stack[len(stack)-1].name)
	}
	if len(root.Keys()) == 0 {
		return nil, ErrEmptyDocument
	}
	return root, nil
}

func (f *frame) finish() *Node {
	text := f.text.String()
	if !f.hasAttrs && !f.hasKids {
		return NewScalar(text)
	}
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		f.node.Set(TextKey, NewScalar(trimmed))
	}
	return f.node
}
