// Package mem is the byte-level memory capability a target port reads and
// writes through. The in-process Memory backs tests and the demo target.
package mem

import (
	"errors"
	"fmt"
	"sync"
)

// Space selects the address space an access goes to.
type Space uint8

const (
	Physical Space = iota
	Virtual
)

// String returns the space name.
func (s Space) String() string {
	switch s {
	case Physical:
		return "physical"
	case Virtual:
		return "virtual"
	default:
		return fmt.Sprintf("space(%d)", uint8(s))
	}
}

// Reader fills buf from addr in space.
type Reader interface {
	Read(space Space, addr uint64, buf []byte) error
}

// Writer copies data to addr in space.
type Writer interface {
	Write(space Space, addr uint64, data []byte) error
}

// ReadWriter groups Reader and Writer.
type ReadWriter interface {
	Reader
	Writer
}

// PageSize is the granularity of Memory's backing store.
const PageSize = 4096

// ErrOutOfRange is returned for accesses past the configured limit.
var ErrOutOfRange = errors.New("address out of range")

// Memory is a sparse in-process ReadWriter. Pages are allocated on first
// write; unwritten bytes read as zero. Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	limit  uint64
	spaces map[Space]map[uint64]*[PageSize]byte
}

// Option configures a Memory.
type Option func(*Memory)

// WithLimit rejects accesses at or beyond limit. Zero means no limit.
func WithLimit(limit uint64) Option {
	return func(m *Memory) {
		m.limit = limit
	}
}

// NewMemory creates an empty Memory.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{spaces: make(map[Space]map[uint64]*[PageSize]byte)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) check(op string, space Space, addr uint64, n int) error {
	end := addr + uint64(n)
	if end < addr {
		return fmt.Errorf("%s %s %#x+%d: %w", op, space, addr, n, ErrOutOfRange)
	}
	if m.limit != 0 && end > m.limit {
		return fmt.Errorf("%s %s %#x+%d (limit %#x): %w", op, space, addr, n, m.limit, ErrOutOfRange)
	}
	return nil
}

// Read implements Reader.
func (m *Memory) Read(space Space, addr uint64, buf []byte) error {
	if err := m.check("read", space, addr, len(buf)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pages := m.spaces[space]
	for done := 0; done < len(buf); {
		cur := addr + uint64(done)
		off := cur % PageSize
		n := min(len(buf)-done, int(PageSize-off))
		if page, ok := pages[cur/PageSize]; ok {
			copy(buf[done:done+n], page[off:])
		} else {
			clear(buf[done : done+n])
		}
		done += n
	}
	return nil
}

// Write implements Writer.
func (m *Memory) Write(space Space, addr uint64, data []byte) error {
	if err := m.check("write", space, addr, len(data)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pages, ok := m.spaces[space]
	if !ok {
		pages = make(map[uint64]*[PageSize]byte)
		m.spaces[space] = pages
	}
	for done := 0; done < len(data); {
		cur := addr + uint64(done)
		off := cur % PageSize
		n := min(len(data)-done, int(PageSize-off))
		page, ok := pages[cur/PageSize]
		if !ok {
			page = new([PageSize]byte)
			pages[cur/PageSize] = page
		}
		copy(page[off:], data[done:done+n])
		done += n
	}
	return nil
}

// Pages returns the number of allocated pages in space.
func (m *Memory) Pages(space Space) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spaces[space])
}
