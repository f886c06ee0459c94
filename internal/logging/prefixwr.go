package logging

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter prefixes every line written to it. Concurrent writers sharing
// one underlying io.Writer should each use their own PrefixWriter; writes to
// the underlying writer are serialized by mu when one is supplied.
type PrefixWriter struct {
	w      io.Writer
	mu     *sync.Mutex
	prefix []byte
	inLine bool // not at start of line
}

func NewPrefixWriter(w io.Writer, mu *sync.Mutex, prefix string) *PrefixWriter {
	return &PrefixWriter{w: w, mu: mu, prefix: []byte(prefix)}
}

func (pw *PrefixWriter) Write(p []byte) (n int, err error) {
	if pw.mu != nil {
		pw.mu.Lock()
		defer pw.mu.Unlock()
	}

	for len(p) > 0 {
		nlIdx := bytes.IndexByte(p, '\n')
		if nlIdx < 0 {
			if !pw.inLine {
				if _, err := pw.w.Write(pw.prefix); err != nil {
					return n, err
				}
			}
			pw.inLine = true
			m, err := pw.w.Write(p)
			return n + m, err
		}
		if !pw.inLine {
			if _, err := pw.w.Write(pw.prefix); err != nil {
				return n, err
			}
		}
		nlIdx++
		m, err := pw.w.Write(p[:nlIdx])
		n += m
		if err != nil {
			return n, err
		}
		pw.inLine = false
		p = p[nlIdx:]
	}

	return n, nil
}
