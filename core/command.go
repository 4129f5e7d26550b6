package core

import (
	"errors"
	"sort"
	"sync"

	"fsrsense/protocol"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrDuplicateCommand = errors.New("command id already registered")
)

// CommandHandler decodes its own arguments from data and advances it.
type CommandHandler func(data *[]byte) error

// Command is one entry of the link dictionary. Responses (device to host)
// have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string
	Handler CommandHandler
}

// CommandRegistry maps message IDs to handlers and renders the dictionary
// served by identify.
type CommandRegistry struct {
	mu         sync.RWMutex
	commands   map[uint16]*Command
	ids        []uint16
	dictionary string
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[uint16]*Command)}
}

// Register adds a command under a fixed id.
func (r *CommandRegistry) Register(id uint16, name, format string, handler CommandHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[id]; exists {
		return ErrDuplicateCommand
	}
	r.commands[id] = &Command{ID: id, Name: name, Format: format, Handler: handler}
	r.ids = append(r.ids, id)
	sort.Slice(r.ids, func(i, j int) bool { return r.ids[i] < r.ids[j] })
	r.rebuildDictionary()
	return nil
}

// RegisterMessages registers every message of the link table, taking
// handlers from handlers by id.
func (r *CommandRegistry) RegisterMessages(messages []protocol.MessageFormat, handlers map[uint16]CommandHandler) error {
	for _, m := range messages {
		var h CommandHandler
		if !m.Response {
			h = handlers[m.ID]
		}
		if err := r.Register(m.ID, m.Name, m.Format, h); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the command registered under id.
func (r *CommandRegistry) Lookup(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler for id.
func (r *CommandRegistry) Dispatch(id uint16, data *[]byte) error {
	cmd, ok := r.Lookup(id)
	if !ok || cmd.Handler == nil {
		return ErrUnknownCommand
	}
	return cmd.Handler(data)
}

// Dictionary returns one line per message, "id name format", after a
// version line.
func (r *CommandRegistry) Dictionary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dictionary
}

// DictionaryChunk returns up to count bytes of the dictionary from offset.
func (r *CommandRegistry) DictionaryChunk(offset uint32, count uint8) []byte {
	dict := r.Dictionary()
	if offset >= uint32(len(dict)) {
		return nil
	}
	end := offset + uint32(count)
	if end > uint32(len(dict)) {
		end = uint32(len(dict))
	}
	return []byte(dict[offset:end])
}

// rebuildDictionary must be called with the lock held.
func (r *CommandRegistry) rebuildDictionary() {
	dict := protocol.Version + "\n"
	for _, id := range r.ids {
		cmd := r.commands[id]
		dict += utoa(uint32(id)) + " " + cmd.Name
		if cmd.Format != "" {
			dict += " " + cmd.Format
		}
		dict += "\n"
	}
	r.dictionary = dict
}
