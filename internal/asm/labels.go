package asm

import (
	"irasm/internal/asmerr"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/pool"
)

// LabelIndex hands out a temporary code offset for label, stable for the
// function currently being lowered.
func (c *Context) LabelIndex(label ir.BlockLabel) (fileformat.CodeOffset, error) {
	idx, err := c.labels.GetOrAdd(label)
	return fileformat.CodeOffset(idx), err
}

// BuildIndexRemapping translates the temporary offsets handed out by LabelIndex
// into the real offsets in labelToOffset and clears the label table for the
// next function. Every label in labelToOffset must have been handed an index.
func (c *Context) BuildIndexRemapping(labelToOffset map[ir.BlockLabel]fileformat.CodeOffset) (map[fileformat.CodeOffset]fileformat.CodeOffset, error) {
	labels := c.labels
	c.labels = pool.New[ir.BlockLabel](pool.WithName("labels"))

	remap := make(map[fileformat.CodeOffset]fileformat.CodeOffset, len(labelToOffset))
	for label, offset := range labelToOffset {
		tmp, ok := labels.Index(label)
		if !ok {
			return nil, asmerr.Newf(asmerr.KindUnboundMember, string(label), "label was never referenced")
		}
		remap[fileformat.CodeOffset(tmp)] = offset
	}
	return remap, nil
}
