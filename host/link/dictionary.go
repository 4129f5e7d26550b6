package link

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"fsrsense/protocol"
)

// Dictionary is the message table a board reports through identify.
type Dictionary struct {
	Version  string
	Messages map[uint16]protocol.MessageFormat
}

// ParseDictionary parses the identify text: a version line followed by
// one "id name [format]" line per message.
func ParseDictionary(text string) (*Dictionary, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("empty dictionary")
	}
	d := &Dictionary{
		Version:  lines[0],
		Messages: make(map[uint16]protocol.MessageFormat, len(lines)-1),
	}
	for i, line := range lines[1:] {
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("dictionary line %d: %q", i+2, line)
		}
		id, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("dictionary line %d: bad id: %w", i+2, err)
		}
		m := protocol.MessageFormat{ID: uint16(id), Name: fields[1]}
		if len(fields) == 3 {
			m.Format = fields[2]
		}
		if known, ok := protocol.LookupMessage(m.ID); ok {
			m.Response = known.Response
		}
		d.Messages[m.ID] = m
	}
	return d, nil
}

// Compatible checks that the board speaks this host's protocol version
// and message table.
func (d *Dictionary) Compatible() error {
	if d.Version != protocol.Version {
		return fmt.Errorf("protocol version %q, want %q", d.Version, protocol.Version)
	}
	for _, want := range protocol.Messages {
		got, ok := d.Messages[want.ID]
		if !ok {
			return fmt.Errorf("board does not know message %d (%s)", want.ID, want.Name)
		}
		if got.Name != want.Name || got.Format != want.Format {
			return fmt.Errorf("message %d is %s %q, want %s %q", want.ID, got.Name, got.Format, want.Name, want.Format)
		}
	}
	return nil
}

// Sorted returns the messages in ID order.
func (d *Dictionary) Sorted() []protocol.MessageFormat {
	out := make([]protocol.MessageFormat, 0, len(d.Messages))
	for _, m := range d.Messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
