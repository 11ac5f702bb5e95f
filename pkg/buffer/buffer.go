// Package buffer serves random and sequential typed access to a file
// through a single movable in-memory window.
//
// A FileBuffer is not safe for concurrent use. It owns its channel: nothing
// else may read or write the file while the buffer is open, since unflushed
// window contents diverge from what is on disk.
package buffer

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const maxWindowSize = math.MaxInt32

// Channel is the random-access byte stream backing a FileBuffer.
// Both *os.File and afero.File satisfy it.
type Channel interface {
	io.ReaderAt
	io.WriterAt
	Stat() (os.FileInfo, error)
	Sync() error
	Close() error
	Name() string
}

var (
	_ Channel = (*os.File)(nil)
	_ Channel = (afero.File)(nil)
)

type FileBuffer struct {
	ch Channel

	window      []byte
	valid       int // bytes of window actually read from the channel
	windowStart int64

	position int64

	dirty        bool
	highestDirty int  // exclusive end of the dirty prefix, relative to windowStart
	stale        bool // a failed refill left window contents undefined

	order  binary.ByteOrder
	closed bool

	lg *zap.Logger
}

// Open wraps ch and reads the first window. The buffer takes ownership of
// ch: it is closed on any error here and by Close afterwards.
func Open(ch Channel, opts ...Option[*Options]) (*FileBuffer, error) {
	o := DefaultOptions()
	ApplyOptions(&o, opts...)

	fail := func(err error) (*FileBuffer, error) {
		return nil, multierr.Append(err, ch.Close())
	}

	if o.WindowSize < 1 {
		return fail(ErrInvalidWindowSize)
	}
	if o.WindowSize > maxWindowSize {
		return fail(ErrOffsetOverflow)
	}
	b := &FileBuffer{
		ch:     ch,
		window: make([]byte, o.WindowSize),
		order:  o.Order,
		lg:     o.Logger.Named("filebuf"),
	}
	if err := b.fill(0, 0); err != nil {
		return fail(err)
	}
	return b, nil
}

// OpenFile opens name on fs with flag and wraps it in a FileBuffer.
func OpenFile(fs afero.Fs, name string, flag int, opts ...Option[*Options]) (*FileBuffer, error) {
	f, err := fs.OpenFile(name, flag, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return Open(f, opts...)
}

func (b *FileBuffer) Name() string {
	return b.ch.Name()
}

// Capacity is the current window size in bytes.
func (b *FileBuffer) Capacity() int {
	return len(b.window)
}

func (b *FileBuffer) WindowStart() int64 {
	return b.windowStart
}

func (b *FileBuffer) Order() binary.ByteOrder {
	return b.order
}

// SetOrder changes how multi-byte values are encoded from the next access on.
func (b *FileBuffer) SetOrder(order binary.ByteOrder) {
	b.order = order
}

// fill loads the window at off, growing it to at least n bytes. Only bytes
// below the physical end are read; the rest reads as zero. On error the
// previous window is left stale and is reloaded on next access.
func (b *FileBuffer) fill(off int64, n int) error {
	fi, err := b.ch.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", b.ch.Name())
	}

	window := b.window
	if n > len(window) {
		window = make([]byte, n)
	}

	read := 0
	if avail := fi.Size() - off; avail > 0 {
		want := int(Min(int64(len(window)), avail))
		read, err = b.ch.ReadAt(window[:want], off)
		if err != nil && err != io.EOF {
			if len(window) == len(b.window) {
				b.stale = true
			}
			return errors.Wrapf(err, "read window of %s at %d", b.ch.Name(), off)
		}
	}
	clear(window[read:])

	b.window = window
	b.windowStart = off
	b.valid = read
	b.stale = false
	return nil
}

// ensureWindow makes [off, off+n) resident and returns the offset of off
// inside the window.
func (b *FileBuffer) ensureWindow(off int64, n int) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if off < 0 || n < 0 {
		return 0, errors.Wrapf(ErrInvalidOffset, "offset %d length %d", off, n)
	}
	if n > maxWindowSize || off > math.MaxInt64-int64(n) {
		return 0, errors.Wrapf(ErrOffsetOverflow, "offset %d length %d", off, n)
	}

	if n == 0 {
		return 0, nil
	}

	end := b.windowStart + int64(len(b.window))
	if !b.stale && off >= b.windowStart && off+int64(n) <= end {
		return int(off - b.windowStart), nil
	}

	if b.dirty {
		if err := b.flushWindow(); err != nil {
			return 0, err
		}
		b.dirty = false
		b.highestDirty = 0
	}

	if ce := b.lg.Check(zap.DebugLevel, "relocate window"); ce != nil {
		ce.Write(
			zap.String("file", b.ch.Name()),
			zap.Int64("from", b.windowStart),
			zap.Int64("to", off),
			zap.String("size", humanize.IBytes(uint64(Max(len(b.window), n)))),
		)
	}

	// grow only; byte order is kept on the buffer so a new slice inherits it
	if err := b.fill(off, n); err != nil {
		return 0, err
	}
	return 0, nil
}

// load returns the resident bytes for [pos, pos+n). The slice must not
// outlive the next call on b.
func (b *FileBuffer) load(pos int64, n int) ([]byte, error) {
	rel, err := b.ensureWindow(pos, n)
	if err != nil {
		return nil, err
	}
	return b.window[rel : rel+n], nil
}

// store is load for writing: the returned range is marked dirty.
func (b *FileBuffer) store(pos int64, n int) ([]byte, error) {
	rel, err := b.ensureWindow(pos, n)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		b.dirty = true
		b.highestDirty = Max(b.highestDirty, rel+n)
	}
	return b.window[rel : rel+n], nil
}

func (b *FileBuffer) flushWindow() error {
	if b.highestDirty == 0 {
		return nil
	}
	n, err := b.ch.WriteAt(b.window[:b.highestDirty], b.windowStart)
	if err != nil {
		return errors.Wrapf(err, "flush %s at %d", b.ch.Name(), b.windowStart)
	}
	if n != b.highestDirty {
		return errors.Wrapf(ErrShortWrite, "flush %s: wrote %d of %d bytes", b.ch.Name(), n, b.highestDirty)
	}

	if ce := b.lg.Check(zap.DebugLevel, "flush window"); ce != nil {
		ce.Write(
			zap.String("file", b.ch.Name()),
			zap.Int64("start", b.windowStart),
			zap.String("dirty", humanize.IBytes(uint64(b.highestDirty))),
		)
	}
	return nil
}

// Flush writes the dirty prefix of the window back to the channel. The
// dirty range is kept, so flushing again rewrites the same bytes.
func (b *FileBuffer) Flush() error {
	if b.closed {
		return ErrClosed
	}
	return b.flushWindow()
}

// Close flushes, syncs and closes the channel. The channel is closed even
// when the flush fails; all errors are reported.
func (b *FileBuffer) Close() error {
	if b.closed {
		return ErrClosed
	}

	err := b.flushWindow()
	b.closed = true
	b.window = nil
	b.valid = 0

	if serr := b.ch.Sync(); serr != nil {
		err = multierr.Append(err, errors.Wrapf(serr, "sync %s", b.ch.Name()))
	}
	if cerr := b.ch.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrapf(cerr, "close %s", b.ch.Name()))
	}
	return err
}

// Length is the physical size of the file. Unflushed writes past the end
// are not counted; see EOFPosition.
func (b *FileBuffer) Length() (int64, error) {
	if b.closed {
		return 0, ErrClosed
	}
	fi, err := b.ch.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", b.ch.Name())
	}
	return fi.Size(), nil
}

// EOFPosition is the logical file size, including buffered writes that
// extend the file.
func (b *FileBuffer) EOFPosition() (int64, error) {
	size, err := b.Length()
	if err != nil {
		return 0, err
	}
	return Max(size, b.windowStart+int64(b.highestDirty)), nil
}

// IsEOF reports whether a sequential reader has consumed the window and the
// window ends at the physical end of file. Pending writes are ignored, so a
// buffer that only wrote past the end is not at EOF until it is reopened.
func (b *FileBuffer) IsEOF() (bool, error) {
	size, err := b.Length()
	if err != nil {
		return false, err
	}
	limit := b.windowStart + int64(b.valid)
	return b.position >= limit && limit == size, nil
}
