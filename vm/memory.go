package vm

// pageSize is the fixed linear-memory page granularity: 64 KiB, per core.
const pageSize = 65536

// maxPages is the hard ceiling a 32-bit address space imposes regardless of
// a declared maximum: 4 GiB / 64 KiB.
const maxPages = 65536

// Memory is the module's linear memory: a growable byte slice plus the data
// segments carried over from instantiation for memory.init/data.drop. It
// implements exec.Memory.
type Memory struct {
	data     []byte
	segments [][]byte
	dropped  []bool
	max      uint32 // 0 means unbounded (up to maxPages)
}

// NewMemory allocates a memory starting at minPages pages, capped at
// maxPagesLimit (0 for no declared maximum).
func NewMemory(minPages, maxPagesLimit uint32) *Memory {
	return &Memory{
		data: make([]byte, uint64(minPages)*pageSize),
		max:  maxPagesLimit,
	}
}

// SetSegments installs the module's data segments, indexed the same way
// memory.init/data.drop address them: declaration order in the Data section.
func (m *Memory) SetSegments(segments [][]byte) {
	m.segments = segments
	m.dropped = make([]bool, len(segments))
}

func (m *Memory) ReadByte(addr uint32) (byte, bool) {
	if uint64(addr) >= uint64(len(m.data)) {
		return 0, false
	}
	return m.data[addr], true
}

func (m *Memory) WriteByte(addr uint32, v byte) bool {
	if uint64(addr) >= uint64(len(m.data)) {
		return false
	}
	m.data[addr] = v
	return true
}

func (m *Memory) Read(addr, size uint32) ([]byte, bool) {
	end := uint64(addr) + uint64(size)
	if end > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[addr:end], true
}

func (m *Memory) Write(addr uint32, data []byte) bool {
	end := uint64(addr) + uint64(len(data))
	if end > uint64(len(m.data)) {
		return false
	}
	copy(m.data[addr:end], data)
	return true
}

func (m *Memory) Fill(addr, size uint32, value byte) bool {
	end := uint64(addr) + uint64(size)
	if end > uint64(len(m.data)) {
		return false
	}
	region := m.data[addr:end]
	for i := range region {
		region[i] = value
	}
	return true
}

func (m *Memory) Copy(dst, src, size uint32) bool {
	dstEnd := uint64(dst) + uint64(size)
	srcEnd := uint64(src) + uint64(size)
	if dstEnd > uint64(len(m.data)) || srcEnd > uint64(len(m.data)) {
		return false
	}
	// memmove semantics: copy handles overlap correctly regardless of
	// direction, unlike the table.copy path which must pick a scan order
	// by hand (see exec's table.copy sibling).
	copy(m.data[dst:dstEnd], m.data[src:srcEnd])
	return true
}

func (m *Memory) InitPassiveSegment(segID int, dst, srcOff, size uint32) bool {
	if segID < 0 || segID >= len(m.segments) || m.dropped[segID] {
		return false
	}
	seg := m.segments[segID]
	if uint64(srcOff)+uint64(size) > uint64(len(seg)) {
		return false
	}
	return m.Write(dst, seg[srcOff:srcOff+size])
}

func (m *Memory) DropSegment(segID int) {
	if segID >= 0 && segID < len(m.dropped) {
		m.dropped[segID] = true
	}
}

func (m *Memory) Grow(deltaPages int32) int32 {
	if deltaPages < 0 {
		return -1
	}
	prev := uint32(len(m.data) / pageSize)
	next := prev + uint32(deltaPages)
	limit := uint32(maxPages)
	if m.max != 0 && m.max < limit {
		limit = m.max
	}
	if next < prev || next > limit {
		return -1
	}
	m.data = append(m.data, make([]byte, uint64(deltaPages)*pageSize)...)
	return int32(prev)
}

func (m *Memory) PageCount() uint32 {
	return uint32(len(m.data) / pageSize)
}
