package upload

// ByteRange is the half-open interval [Start, End) of a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r ByteRange) Len() int64 { return r.End - r.Start }

// Planner yields the byte ranges of a file in part order. It is lazy and
// single pass: once Next reports false it stays exhausted.
type Planner struct {
	total int64
	chunk int64
	next  int64 // offset of the next range
}

// Plan splits totalSize bytes into ranges of chunkSize, the last one
// clipped to totalSize. A zero totalSize yields an empty plan.
func Plan(totalSize, chunkSize int64) (*Planner, error) {
	if chunkSize <= 0 {
		return nil, &Error{Kind: KindInvalidInput, Err: ErrInvalidChunkSize}
	}
	if totalSize < 0 {
		totalSize = 0
	}
	return &Planner{total: totalSize, chunk: chunkSize}, nil
}

// Next returns the next range, or false when the plan is exhausted.
func (p *Planner) Next() (ByteRange, bool) {
	if p.next >= p.total {
		return ByteRange{}, false
	}
	end := p.next + p.chunk
	if end > p.total || end < p.next { // second check guards overflow
		end = p.total
	}
	r := ByteRange{Start: p.next, End: end}
	p.next = end
	return r, true
}

// Len returns the total number of ranges in the plan, consumed or not.
func (p *Planner) Len() int {
	if p.total == 0 {
		return 0
	}
	return int((p.total-1)/p.chunk + 1)
}

// Ranges drains the remaining ranges into a slice.
func (p *Planner) Ranges() []ByteRange {
	var out []ByteRange
	for {
		r, ok := p.Next()
		if !ok {
			return out
		}
		out = append(out, r)
	}
}
