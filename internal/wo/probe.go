package wo

// Prober generates the sequence of candidate hash-index slots used to
// resolve a collision: linear probing for major_version >= 3, Fibonacci
// probing (step sequence 1, 2, 3, 5, 8, ...) for older tables. The same
// sequence is used both when inserting a row during a build and when
// looking one up, so the two must never diverge.
type Prober struct {
	majorVersion uint8
	indexSize    uint64
	slot         uint64
	collisions   uint64
	fib          [2]uint64
}

// NewProber starts a probe sequence at hash%indexSize.
func NewProber(majorVersion uint8, indexSize, hash uint64) *Prober {
	return &Prober{
		majorVersion: majorVersion,
		indexSize:    indexSize,
		slot:         hash % indexSize,
		fib:          [2]uint64{2, 1},
	}
}

// Slot returns the current candidate slot.
func (p *Prober) Slot() uint64 { return p.slot }

// Advance moves to the next candidate slot in the sequence.
func (p *Prober) Advance() {
	if p.majorVersion >= 3 {
		p.slot++
		if p.slot == p.indexSize {
			p.slot = 0
		}
		return
	}

	p.collisions++
	idx := p.collisions & 1
	other := (idx + 1) & 1
	p.slot = (p.slot + p.fib[idx]) % p.indexSize
	p.fib[idx] += p.fib[other]
}
