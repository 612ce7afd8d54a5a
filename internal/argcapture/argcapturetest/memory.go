// Package argcapturetest provides a fake user address space for exercising
// argument capture without a kernel.
package argcapturetest

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFault is returned for reads of unmapped addresses.
var ErrFault = errors.New("bad address")

const (
	pathBase   = 0x10000
	argvBase   = 0x20000
	stringBase = 0x40000
	stride     = 0x1000
)

// Memory is a sparse fake address space.
type Memory struct {
	regions map[uint64][]byte
}

// New returns an empty address space.
func New() *Memory {
	return &Memory{regions: make(map[uint64][]byte)}
}

// Exec lays out path and argv the way execve receives them and returns the
// address space with the path and argv addresses. argv is NULL terminated.
func Exec(path string, argv []string) (*Memory, uint64, uint64) {
	m := New()
	m.Map(pathBase, append([]byte(path), 0))

	ptrs := make([]byte, (len(argv)+1)*8)
	for i, arg := range argv {
		addr := stringBase + uint64(i)*stride
		m.Map(addr, append([]byte(arg), 0))
		binary.LittleEndian.PutUint64(ptrs[i*8:], addr)
	}
	m.Map(argvBase, ptrs)

	return m, pathBase, argvBase
}

// Map places data at addr.
func (m *Memory) Map(addr uint64, data []byte) {
	m.regions[addr] = data
}

// Unmap removes the region starting at addr.
func (m *Memory) Unmap(addr uint64) {
	delete(m.regions, addr)
}

// StringAddr returns the address Exec used for argv[i].
func StringAddr(i int) uint64 {
	return stringBase + uint64(i)*stride
}

func (m *Memory) find(addr uint64) ([]byte, error) {
	for base, data := range m.regions {
		if addr >= base && addr < base+uint64(len(data)) {
			return data[addr-base:], nil
		}
	}
	return nil, fmt.Errorf("read at %#x: %w", addr, ErrFault)
}

// ReadPointer implements argcapture.MemoryReader.
func (m *Memory) ReadPointer(addr uint64) (uint64, error) {
	data, err := m.find(addr)
	if err != nil {
		return 0, err
	}
	if len(data) < 8 {
		return 0, fmt.Errorf("short pointer read at %#x: %w", addr, ErrFault)
	}
	return binary.LittleEndian.Uint64(data), nil
}

// ReadString implements argcapture.MemoryReader with the truncating
// semantics of the kernel's user string reader.
func (m *Memory) ReadString(dst []byte, addr uint64) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	data, err := m.find(addr)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(dst)-1; i++ {
		if i >= len(data) {
			return 0, fmt.Errorf("unterminated string at %#x: %w", addr, ErrFault)
		}
		dst[i] = data[i]
		if data[i] == 0 {
			return i + 1, nil
		}
	}
	dst[len(dst)-1] = 0
	return len(dst), nil
}
