package gitfetch

import (
	"bytes"
	"io"
	"regexp"
	"strconv"

	"github.com/unbasical/bundleota/pkg/transport"
)

// matches the "(received/total)" counter of git sideband progress lines,
// e.g. "Receiving objects:  42% (42/100), 1.20 MiB | 1.00 MiB/s"
var reProgress = regexp.MustCompile(`\((\d+)/(\d+)\)`)

type progressWriter struct {
	onProgress transport.ProgressFunc
	buf        []byte
}

func newProgressWriter(onProgress transport.ProgressFunc) io.Writer {
	if onProgress == nil {
		return nil
	}
	return &progressWriter{onProgress: onProgress}
}

// Write splits the sideband stream into lines terminated by '\r' or '\n' and reports each counter.
func (p *progressWriter) Write(data []byte) (int, error) {
	p.buf = append(p.buf, data...)
	for {
		i := bytes.IndexAny(p.buf, "\r\n")
		if i < 0 {
			break
		}
		p.report(p.buf[:i])
		p.buf = p.buf[i+1:]
	}
	return len(data), nil
}

func (p *progressWriter) report(line []byte) {
	m := reProgress.FindSubmatch(line)
	if m == nil {
		return
	}
	received, err1 := strconv.ParseInt(string(m[1]), 10, 64)
	total, err2 := strconv.ParseInt(string(m[2]), 10, 64)
	if err1 != nil || err2 != nil {
		return
	}
	p.onProgress.Report(received, total)
}
