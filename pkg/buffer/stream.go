package buffer

import (
	"io"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/pkg/errors"
)

// Byte-stream adapters. They move data window by window and never grow the
// window; reads stop at the logical end of file.

var (
	_ io.ReaderAt        = (*FileBuffer)(nil)
	_ io.WriterAt        = (*FileBuffer)(nil)
	_ io.ReadWriteSeeker = (*FileBuffer)(nil)
)

// span is how many bytes starting at pos fit in one window access.
func (b *FileBuffer) span(pos int64) int {
	if !b.stale && pos >= b.windowStart && pos < b.windowStart+int64(len(b.window)) {
		return int(b.windowStart + int64(len(b.window)) - pos)
	}
	return len(b.window)
}

// ReadAt reads len(p) bytes at off, or up to EOFPosition with io.EOF.
// Pending writes are visible.
func (b *FileBuffer) ReadAt(p []byte, off int64) (int, error) {
	eof, err := b.EOFPosition()
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, errors.Wrapf(ErrInvalidOffset, "offset %d", off)
	}
	if off >= eof {
		return 0, io.EOF
	}

	want := int(Min(int64(len(p)), eof-off))
	n := 0
	for n < want {
		pos := off + int64(n)
		src, err := b.load(pos, Min(want-n, b.span(pos)))
		if err != nil {
			return n, err
		}
		n += copy(p[n:want], src)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes all of p at off, extending the logical file as needed.
func (b *FileBuffer) WriteAt(p []byte, off int64) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		dst, err := b.store(pos, Min(len(p)-n, b.span(pos)))
		if err != nil {
			return n, err
		}
		n += copy(dst, p[n:])
	}
	return n, nil
}

// Read reads from the cursor and advances it by the bytes read.
func (b *FileBuffer) Read(p []byte) (int, error) {
	n, err := b.ReadAt(p, b.position)
	b.position += int64(n)
	return n, err
}

// Write writes at the cursor and advances it by the bytes written.
func (b *FileBuffer) Write(p []byte) (int, error) {
	n, err := b.WriteAt(p, b.position)
	b.position += int64(n)
	return n, err
}

// Seek moves the cursor. io.SeekEnd is relative to EOFPosition.
func (b *FileBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = b.position
	case io.SeekEnd:
		eof, err := b.EOFPosition()
		if err != nil {
			return 0, err
		}
		base = eof
	default:
		return 0, errors.Errorf("invalid whence %d", whence)
	}
	if base+offset < 0 {
		return 0, errors.Wrapf(ErrInvalidOffset, "seek to %d", base+offset)
	}
	b.position = base + offset
	return b.position, nil
}
