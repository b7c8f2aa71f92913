package readerutils

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
)

func TestNewProgressReader(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 10)
	var totals []uint64
	r := NewProgressReader(iotest.OneByteReader(bytes.NewReader(data)), func(total uint64) {
		totals = append(totals, total)
	})
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
	if len(totals) != len(data) {
		t.Fatalf("expected %d progress calls, got %d", len(data), len(totals))
	}
	for i, total := range totals {
		if total != uint64(i+1) {
			t.Errorf("call %d: got total %d, want %d", i, total, i+1)
		}
	}
}

func TestNewProgressReader_NilCallback(t *testing.T) {
	src := bytes.NewReader([]byte("bundle"))
	if r := NewProgressReader(src, nil); r != io.Reader(src) {
		t.Errorf("expected the source reader to be returned unchanged")
	}
}
