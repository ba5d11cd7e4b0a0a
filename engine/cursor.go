package engine

// cursorState tracks the implicit per-handle navigation position.
type cursorState int

const (
	cursorUnpositioned cursorState = iota
	cursorPositioned
	cursorEndOfSequence
)

// cursor is the engine-side position pointer shared implicitly between the
// client and the engine for one store handle. It is not synchronized;
// serializing calls per handle is the client's contract.
type cursor struct {
	state cursorState
	cur   *entry
}

func (c *cursor) position(e *entry) bool {
	if e == nil {
		c.state = cursorEndOfSequence
		c.cur = nil
		return false
	}
	c.state = cursorPositioned
	c.cur = e
	return true
}

func (c *cursor) invalidate() {
	c.state = cursorUnpositioned
	c.cur = nil
}

func (c *cursor) current() (*entry, bool) {
	if c.state != cursorPositioned {
		return nil, false
	}
	return c.cur, true
}
