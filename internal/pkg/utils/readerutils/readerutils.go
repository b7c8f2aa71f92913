package readerutils

import "io"

type progressReader struct {
	r      io.Reader
	total  uint64
	onRead func(total uint64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.total += uint64(n)
		p.onRead(p.total)
	}
	return n, err
}

// NewProgressReader counts the bytes read from r and calls onRead with the running total after every non-empty read.
// A nil onRead returns r unchanged.
func NewProgressReader(r io.Reader, onRead func(total uint64)) io.Reader {
	if onRead == nil {
		return r
	}
	return &progressReader{r: r, onRead: onRead}
}
