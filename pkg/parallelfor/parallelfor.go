// Package parallelfor adapts a ranged loop body into a taskengine task: the
// convenience wrapper the core spec describes only at its interface
// boundary and leaves external.
package parallelfor

import (
	"github.com/ChuLiYu/taskengine"
)

// Body is invoked once per block with the sub-range [begin, end).
type Body func(begin, end int)

type capture struct {
	body       Body
	begin      int
	end        int
	blockSize  int
	totalUnits int
}

func (c *capture) run(unit int, _ interface{}) error {
	lo := c.begin + unit*c.blockSize
	hi := lo + c.blockSize
	if hi > c.end {
		hi = c.end
	}
	c.body(lo, hi)
	return nil
}

// Run splits [begin, end) into ceil((end-begin)/blockSize) blocks and runs
// body once per block as a work unit of a single task on p (the default
// pool if p is nil), blocking until every block has run.
func Run(p *taskengine.Pool, begin, end, blockSize int, body Body) error {
	if blockSize < 1 {
		blockSize = 1
	}
	if end <= begin {
		return nil
	}
	units := (end - begin + blockSize - 1) / blockSize

	c := &capture{body: body, begin: begin, end: end, blockSize: blockSize, totalUnits: units}
	return taskengine.SubmitAndWait(p, units, c.run, nil)
}
