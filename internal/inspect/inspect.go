// Package inspect scans plain-format pg_dump output for a few sanity signals
// without holding the dump in memory.
package inspect

import (
	"bytes"
)

// Only the start of each line is kept; COPY rows can be arbitrarily long.
const headLen = 64

var (
	createTable         = []byte("CREATE TABLE ")
	createUnloggedTable = []byte("CREATE UNLOGGED TABLE ")
	createSequence      = []byte("CREATE SEQUENCE ")
	completeMarker      = []byte("-- PostgreSQL database dump complete")
)

type Stats struct {
	Bytes     int64 `json:"bytes" yaml:"bytes"`
	Tables    int   `json:"tables" yaml:"tables"`
	Sequences int   `json:"sequences" yaml:"sequences"`
	Complete  bool  `json:"complete" yaml:"complete"`
}

// Scanner is an io.Writer that counts statements in the bytes written to it.
type Scanner struct {
	stats Stats
	head  []byte
}

func New() *Scanner {
	return &Scanner{head: make([]byte, 0, headLen)}
}

func (s *Scanner) Write(p []byte) (int, error) {
	s.stats.Bytes += int64(len(p))

	rest := p
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			s.keep(rest)
			break
		}
		s.keep(rest[:i])
		s.stats = classify(s.stats, s.head)
		s.head = s.head[:0]
		rest = rest[i+1:]
	}
	return len(p), nil
}

// Stats returns the counts so far, including an unterminated last line.
func (s *Scanner) Stats() Stats {
	if len(s.head) == 0 {
		return s.stats
	}
	return classify(s.stats, s.head)
}

func (s *Scanner) keep(b []byte) {
	room := headLen - len(s.head)
	if room <= 0 {
		return
	}
	if len(b) > room {
		b = b[:room]
	}
	s.head = append(s.head, b...)
}

func classify(st Stats, line []byte) Stats {
	line = bytes.TrimRight(line, "\r")
	switch {
	case bytes.HasPrefix(line, createTable), bytes.HasPrefix(line, createUnloggedTable):
		st.Tables++
	case bytes.HasPrefix(line, createSequence):
		st.Sequences++
	case bytes.Equal(line, completeMarker):
		st.Complete = true
	}
	return st
}
