// Package labelmap assigns integer class IDs to class texts while merging
// detection datasets, and renders the result as a label_map.pbtxt file.
package labelmap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrMultipleClasses is returned for a record labeled with more than one
// class text.
var ErrMultipleClasses = errors.New("record has more than one class text")

const (
	// DefaultClassText is the single class used when labels are combined.
	DefaultClassText = "default"
	// SingleClassID is the ID of DefaultClassText.
	SingleClassID int64 = 1
)

// Item is one entry of a label map.
type Item struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// Map assigns IDs from 1 in first-seen order. In combined mode every class
// maps to DefaultClassText.
type Map struct {
	combine bool
	ids     map[string]int64
	items   []Item
}

// New returns an empty Map. A combined map always contains DefaultClassText.
func New(combine bool) *Map {
	m := &Map{combine: combine, ids: make(map[string]int64)}
	if combine {
		m.ids[DefaultClassText] = SingleClassID
		m.items = append(m.items, Item{Name: DefaultClassText, ID: SingleClassID})
	}
	return m
}

// Normalize returns the NFC form of a class text, so that canonically
// equivalent spellings share an ID.
func Normalize(text string) string {
	return norm.NFC.String(text)
}

// Assign returns the item for a record's class texts. ok is false when the
// record carries no class text and should be skipped.
func (m *Map) Assign(texts [][]byte) (item Item, ok bool, err error) {
	switch len(texts) {
	case 0:
		return Item{}, false, nil
	case 1:
	default:
		return Item{}, false, fmt.Errorf("%w: got %d", ErrMultipleClasses, len(texts))
	}

	if m.combine {
		return Item{Name: DefaultClassText, ID: SingleClassID}, true, nil
	}

	name := Normalize(string(texts[0]))
	if id, found := m.ids[name]; found {
		return Item{Name: name, ID: id}, true, nil
	}
	item = Item{Name: name, ID: int64(len(m.items)) + 1}
	m.ids[name] = item.ID
	m.items = append(m.items, item)
	return item, true, nil
}

// Len returns the number of classes.
func (m *Map) Len() int {
	return len(m.items)
}

// Items returns the classes in ID order.
func (m *Map) Items() []Item {
	out := make([]Item, len(m.items))
	copy(out, m.items)
	return out
}

// WriteTo renders the map in protobuf text format, one item block per class.
func (m *Map) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, item := range m.items {
		c, err := fmt.Fprintf(bw, "item {\n  name: %s\n  id: %d\n}\n", quote(item.Name), item.ID)
		n += int64(c)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// quote renders s as a text-format string literal. UTF-8 is kept as is.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
