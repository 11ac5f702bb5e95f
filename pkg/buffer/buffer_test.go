package buffer

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"testing"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/util/iotools"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const testWindowSize = 16

type FileBufferTestSuite struct {
	suite.Suite

	fs   afero.Fs
	name string
	lg   *zap.Logger

	newFs func() afero.Fs
}

func TestFileBufferMemFs(t *testing.T) {
	suite.Run(t, &FileBufferTestSuite{newFs: afero.NewMemMapFs})
}

func TestFileBufferOsFs(t *testing.T) {
	s := &FileBufferTestSuite{}
	s.newFs = func() afero.Fs {
		return afero.NewBasePathFs(afero.NewOsFs(), s.T().TempDir())
	}
	suite.Run(t, s)
}

func (s *FileBufferTestSuite) SetupSuite() {
	// s.lg, _ = zap.NewDevelopment()
	s.lg = zap.NewNop()
}

func (s *FileBufferTestSuite) SetupTest() {
	s.fs = s.newFs()
	s.name = "/data.bin"
}

func (s *FileBufferTestSuite) open(opts ...Option[*Options]) *FileBuffer {
	opts = append([]Option[*Options]{WithWindowSize(testWindowSize), WithLogger(s.lg)}, opts...)
	b, err := OpenFile(s.fs, s.name, os.O_RDWR|os.O_CREATE, opts...)
	s.Require().NoError(err)
	return b
}

func (s *FileBufferTestSuite) fileBytes() []byte {
	data, err := afero.ReadFile(s.fs, s.name)
	s.Require().NoError(err)
	return data
}

func (s *FileBufferTestSuite) TestEndToEnd() {
	const v int64 = 0x0102030405060708
	b := s.open()

	s.Require().NoError(b.PutInt64At(0, v))
	s.Require().NoError(b.PutInt32At(20, 42))

	got, err := b.Int64At(0)
	s.Require().NoError(err)
	s.Equal(v, got)

	i, err := b.Int32At(20)
	s.Require().NoError(err)
	s.EqualValues(42, i)

	gap, err := b.ByteAt(12)
	s.Require().NoError(err)
	s.Zero(gap)

	eof, err := b.EOFPosition()
	s.Require().NoError(err)
	s.EqualValues(24, eof)

	s.Require().NoError(b.Close())

	data := s.fileBytes()
	s.Len(data, 24)
	s.Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8}, data[:8])
	s.EqualValues(42, binary.BigEndian.Uint32(data[20:]))
}

func (s *FileBufferTestSuite) TestEndToEndLittleEndian() {
	const v int64 = 0x0102030405060708
	b := s.open(WithByteOrder(binary.LittleEndian))

	s.Require().NoError(b.PutInt64At(0, v))
	s.Require().NoError(b.PutInt32At(20, 42))
	s.Require().NoError(b.Close())

	data := s.fileBytes()
	s.Len(data, 24)
	s.Equal([]byte{8, 7, 6, 5, 4, 3, 2, 1}, data[:8])
}

func (s *FileBufferTestSuite) TestRoundTripAcrossWindows() {
	b := s.open()
	defer b.Close()

	// positions inside the first window, straddling its end, and far away
	positions := []int64{0, 3, testWindowSize - 8, testWindowSize - 3, testWindowSize, testWindowSize*3 + 5, 4096}

	for _, pos := range positions {
		bv := gofakeit.Uint8()
		s.Require().NoError(b.PutByteAt(pos, bv))
		gotB, err := b.ByteAt(pos)
		s.Require().NoError(err)
		s.Equal(bv, gotB, "byte at %d", pos)

		iv := gofakeit.Int32()
		s.Require().NoError(b.PutInt32At(pos, iv))
		gotI, err := b.Int32At(pos)
		s.Require().NoError(err)
		s.Equal(iv, gotI, "int32 at %d", pos)

		sv := gofakeit.Int16()
		s.Require().NoError(b.PutInt16At(pos, sv))
		gotS, err := b.Int16At(pos)
		s.Require().NoError(err)
		s.Equal(sv, gotS, "int16 at %d", pos)

		lv := gofakeit.Int64()
		s.Require().NoError(b.PutInt64At(pos, lv))
		gotL, err := b.Int64At(pos)
		s.Require().NoError(err)
		s.Equal(lv, gotL, "int64 at %d", pos)

		dv := gofakeit.Float64()
		s.Require().NoError(b.PutFloat64At(pos, dv))
		gotD, err := b.Float64At(pos)
		s.Require().NoError(err)
		s.Equal(dv, gotD, "float64 at %d", pos)
	}
}

func (s *FileBufferTestSuite) TestSequentialCursor() {
	b := s.open()
	defer b.Close()

	var (
		bytesIn  []byte
		intsIn   []int32
		longsIn  []int64
		floatsIn []float64
		blob     = []byte(gofakeit.LetterN(40))
	)
	for i := 0; i < 20; i++ {
		bytesIn = append(bytesIn, gofakeit.Uint8())
		intsIn = append(intsIn, gofakeit.Int32())
		longsIn = append(longsIn, gofakeit.Int64())
		floatsIn = append(floatsIn, gofakeit.Float64())
	}

	b.SetPosition(0)
	for i := range bytesIn {
		s.Require().NoError(b.PutByte(bytesIn[i]))
		s.Require().NoError(b.PutInt32(intsIn[i]))
		s.Require().NoError(b.PutInt64(longsIn[i]))
		s.Require().NoError(b.PutFloat64(floatsIn[i]))
	}
	s.Require().NoError(b.PutBytes(blob))
	s.EqualValues(20*(1+4+8+8)+len(blob), b.Position())

	b.SetPosition(0)
	for i := range bytesIn {
		bv, err := b.GetByte()
		s.Require().NoError(err)
		s.Equal(bytesIn[i], bv)

		iv, err := b.GetInt32()
		s.Require().NoError(err)
		s.Equal(intsIn[i], iv)

		lv, err := b.GetInt64()
		s.Require().NoError(err)
		s.Equal(longsIn[i], lv)

		dv, err := b.GetFloat64()
		s.Require().NoError(err)
		s.Equal(floatsIn[i], dv)
	}
	got := make([]byte, len(blob))
	s.Require().NoError(b.GetBytes(got))
	s.Equal(blob, got)
}

func (s *FileBufferTestSuite) TestPositionAndSkip() {
	b := s.open()
	defer b.Close()

	s.Require().NoError(b.PutBytesAt(0, []byte{10, 11, 12, 13, 14}))

	b.SetPosition(1)
	b.Skip(2)
	s.EqualValues(3, b.Position())

	v, err := b.GetByte()
	s.Require().NoError(err)
	s.EqualValues(13, v)

	b.Skip(-4)
	v, err = b.GetByte()
	s.Require().NoError(err)
	s.EqualValues(10, v)

	// offset-addressed access leaves the cursor alone
	_, err = b.Int32At(100)
	s.Require().NoError(err)
	s.EqualValues(1, b.Position())
}

func (s *FileBufferTestSuite) TestZeroPaddingOnExtension() {
	s.Require().NoError(afero.WriteFile(s.fs, s.name, []byte(gofakeit.LetterN(100)), 0o644))
	b := s.open()
	defer b.Close()

	length, err := b.Length()
	s.Require().NoError(err)
	s.EqualValues(100, length)

	s.Require().NoError(b.PutInt32At(length+1000, 7))

	eof, err := b.EOFPosition()
	s.Require().NoError(err)
	s.GreaterOrEqual(eof, length+1000+4)

	// not flushed yet
	physical, err := b.Length()
	s.Require().NoError(err)
	s.EqualValues(100, physical)

	gap, err := b.ByteAt(length + 500)
	s.Require().NoError(err)
	s.Zero(gap)
}

func (s *FileBufferTestSuite) TestShortReadIsPadded() {
	s.Require().NoError(afero.WriteFile(s.fs, s.name, []byte("hello"), 0o644))
	b := s.open()
	defer b.Close()

	dst := make([]byte, 8)
	s.Require().NoError(b.BytesAt(0, dst))
	s.Equal([]byte("hello\x00\x00\x00"), dst)
}

func (s *FileBufferTestSuite) TestFlushDurability() {
	b := s.open()
	s.Require().NoError(b.PutFloat64At(33, math.Pi))
	s.Require().NoError(b.PutByteAt(2, 0xAB))
	s.Require().NoError(b.Flush())
	s.Require().NoError(b.Close())

	b = s.open()
	defer b.Close()

	v, err := b.Float64At(33)
	s.Require().NoError(err)
	s.Equal(math.Pi, v)

	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, math.Float64bits(math.Pi))
	for i := range raw {
		got, err := b.ByteAt(33 + int64(i))
		s.Require().NoError(err)
		s.Equal(raw[i], got)
	}
	got, err := b.ByteAt(2)
	s.Require().NoError(err)
	s.EqualValues(0xAB, got)
}

func (s *FileBufferTestSuite) TestIdempotentFlush() {
	b := s.open()
	defer b.Close()

	s.Require().NoError(b.PutInt64At(4, gofakeit.Int64()))
	s.Require().NoError(b.Flush())
	once := s.fileBytes()

	s.Require().NoError(b.Flush())
	s.Equal(once, s.fileBytes())
	s.Len(once, 12)
}

func (s *FileBufferTestSuite) TestWindowGrowthIsMonotonic() {
	b := s.open()
	defer b.Close()
	s.Equal(testWindowSize, b.Capacity())

	wide := []byte(gofakeit.LetterN(64))
	s.Require().NoError(b.PutBytesAt(8, wide))
	s.GreaterOrEqual(b.Capacity(), 64)

	_, err := b.Int32At(10_000)
	s.Require().NoError(err)
	s.GreaterOrEqual(b.Capacity(), 64)

	got := make([]byte, len(wide))
	s.Require().NoError(b.BytesAt(8, got))
	s.Equal(wide, got)
}

func (s *FileBufferTestSuite) TestCrossWindowDirtyIsolation() {
	b := s.open()
	defer b.Close()

	v := gofakeit.Int32()
	s.Require().NoError(b.PutInt32At(testWindowSize-4, v))

	_, err := b.ByteAt(1 << 20)
	s.Require().NoError(err)
	s.EqualValues(1<<20, b.WindowStart())

	got, err := b.Int32At(testWindowSize - 4)
	s.Require().NoError(err)
	s.Equal(v, got)
}

func (s *FileBufferTestSuite) TestOrderSurvivesGrowth() {
	b := s.open(WithByteOrder(binary.LittleEndian))
	defer b.Close()

	s.Require().NoError(b.BytesAt(0, make([]byte, 4*testWindowSize)))
	s.Require().NoError(b.PutInt32At(0, 1))

	first, err := b.ByteAt(0)
	s.Require().NoError(err)
	s.EqualValues(1, first)
	s.Equal(binary.LittleEndian, b.Order())

	b.SetOrder(binary.BigEndian)
	v, err := b.Int32At(0)
	s.Require().NoError(err)
	s.EqualValues(1<<24, v)
}

func (s *FileBufferTestSuite) TestSequentialReadReachesEOF() {
	name, _, err := iotools.RandFile(s.fs, "/", "seq", 3*testWindowSize+5)
	s.Require().NoError(err)
	want, err := afero.ReadFile(s.fs, name)
	s.Require().NoError(err)

	s.name = name
	b := s.open()
	defer b.Close()

	var got []byte
	for {
		eof, err := b.IsEOF()
		s.Require().NoError(err)
		if eof {
			break
		}
		v, err := b.GetByte()
		s.Require().NoError(err)
		got = append(got, v)
		s.Require().LessOrEqual(len(got), len(want))
	}
	s.Equal(want, got)
}

// IsEOF looks at the physical file only. A buffer that extended the file
// is not at EOF once the extension is flushed, even with the cursor at the
// logical end.
func (s *FileBufferTestSuite) TestIsEOFIgnoresPendingWrites() {
	s.Require().NoError(afero.WriteFile(s.fs, s.name, []byte{1, 2, 3, 4}, 0o644))
	b := s.open()
	defer b.Close()

	b.SetPosition(4)
	eof, err := b.IsEOF()
	s.Require().NoError(err)
	s.True(eof)

	s.Require().NoError(b.PutInt32(9))
	logical, err := b.EOFPosition()
	s.Require().NoError(err)
	s.Equal(logical, b.Position())

	s.Require().NoError(b.Flush())
	eof, err = b.IsEOF()
	s.Require().NoError(err)
	s.False(eof)
}

func (s *FileBufferTestSuite) TestInvalidOffsets() {
	b := s.open()
	defer b.Close()

	_, err := b.ByteAt(-1)
	s.ErrorIs(err, ErrInvalidOffset)

	_, err = b.Int64At(math.MaxInt64 - 3)
	s.ErrorIs(err, ErrOffsetOverflow)

	b.SetPosition(0)
	b.Skip(-2)
	_, err = b.GetInt32()
	s.ErrorIs(err, ErrInvalidOffset)
	s.EqualValues(-2, b.Position())
}

func (s *FileBufferTestSuite) TestUseAfterClose() {
	b := s.open()
	s.Require().NoError(b.Close())

	_, err := b.ByteAt(0)
	s.ErrorIs(err, ErrClosed)
	s.ErrorIs(b.PutInt32(1), ErrClosed)
	s.ErrorIs(b.Flush(), ErrClosed)
	_, err = b.EOFPosition()
	s.ErrorIs(err, ErrClosed)
	s.ErrorIs(b.Close(), ErrClosed)
}

type countingChannel struct {
	afero.File
	failWrite bool
	failRead  bool
	closes    int
}

func (c *countingChannel) ReadAt(p []byte, off int64) (int, error) {
	if c.failRead {
		return 0, errors.New("bad sector")
	}
	return c.File.ReadAt(p, off)
}

func (c *countingChannel) WriteAt(p []byte, off int64) (int, error) {
	if c.failWrite {
		return 0, errors.New("disk on fire")
	}
	return c.File.WriteAt(p, off)
}

func (c *countingChannel) Close() error {
	c.closes++
	return c.File.Close()
}

func (s *FileBufferTestSuite) channel() *countingChannel {
	f, err := s.fs.OpenFile(s.name, os.O_RDWR|os.O_CREATE, 0o644)
	s.Require().NoError(err)
	return &countingChannel{File: f}
}

func (s *FileBufferTestSuite) TestCloseReleasesChannelOnFlushError() {
	ch := s.channel()
	b, err := Open(ch, WithWindowSize(testWindowSize), WithLogger(s.lg))
	s.Require().NoError(err)

	s.Require().NoError(b.PutInt32At(0, 1))
	ch.failWrite = true

	err = b.Close()
	s.Error(err)
	s.Contains(err.Error(), "disk on fire")
	s.Equal(1, ch.closes)
}

func (s *FileBufferTestSuite) TestRelocationSurfacesFlushError() {
	ch := s.channel()
	b, err := Open(ch, WithWindowSize(testWindowSize), WithLogger(s.lg))
	s.Require().NoError(err)
	defer b.Close()

	s.Require().NoError(b.PutInt32At(0, 1))
	ch.failWrite = true

	_, err = b.ByteAt(1000)
	s.Error(err)
	s.EqualValues(0, b.WindowStart())
}

func (s *FileBufferTestSuite) TestOpenFailureClosesChannel() {
	ch := s.channel()
	_, err := Open(ch, WithWindowSize(0))
	s.ErrorIs(err, ErrInvalidWindowSize)
	s.Equal(1, ch.closes)
}

func (s *FileBufferTestSuite) TestFailedRefillKeepsData() {
	data := []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/")
	s.Require().NoError(afero.WriteFile(s.fs, s.name, data, 0o644))

	ch := s.channel()
	b, err := Open(ch, WithWindowSize(testWindowSize), WithLogger(s.lg))
	s.Require().NoError(err)

	v, err := b.ByteAt(0)
	s.Require().NoError(err)
	s.EqualValues('A', v)

	ch.failRead = true
	s.Error(b.BytesAt(20, make([]byte, 2*testWindowSize)))
	s.Equal(testWindowSize, b.Capacity())
	v, err = b.ByteAt(0)
	s.Require().NoError(err)
	s.EqualValues('A', v)

	// a failed refill in place must not serve the half-read window
	_, err = b.ByteAt(40)
	s.Error(err)
	_, err = b.ByteAt(0)
	s.Error(err)

	ch.failRead = false
	v, err = b.ByteAt(0)
	s.Require().NoError(err)
	s.EqualValues('A', v)

	s.Require().NoError(b.PutByteAt(1, 'x'))
	s.Require().NoError(b.Close())

	want := append([]byte{}, data...)
	want[1] = 'x'
	s.Equal(want, s.fileBytes())
}

func (s *FileBufferTestSuite) TestZeroLengthAccessStaysPut() {
	b := s.open()
	defer b.Close()

	s.Require().NoError(b.PutInt32At(0, 7))
	s.Require().NoError(b.BytesAt(1<<20, nil))
	s.Require().NoError(b.PutBytesAt(1<<20, []byte{}))
	s.EqualValues(0, b.WindowStart())

	length, err := b.Length()
	s.Require().NoError(err)
	s.EqualValues(0, length, "nothing flushed")
	eofPos, err := b.EOFPosition()
	s.Require().NoError(err)
	s.EqualValues(4, eofPos)
}

func (s *FileBufferTestSuite) TestStreamAdapters() {
	b := s.open()

	values := make([]int32, 40)
	for i := range values {
		values[i] = int32(gofakeit.Number(math.MinInt32, math.MaxInt32))
	}
	s.Require().NoError(binary.Write(b, binary.BigEndian, values))
	s.EqualValues(160, b.Position())
	s.Equal(testWindowSize, b.Capacity())

	pos, err := b.Seek(0, io.SeekStart)
	s.Require().NoError(err)
	s.EqualValues(0, pos)
	got := make([]int32, len(values))
	s.Require().NoError(binary.Read(b, binary.BigEndian, got))
	s.Equal(values, got)

	_, err = b.Read(make([]byte, 1))
	s.ErrorIs(err, io.EOF)

	_, err = b.Seek(0, io.SeekStart)
	s.Require().NoError(err)
	var out bytes.Buffer
	n, err := io.Copy(&out, b)
	s.Require().NoError(err)
	s.EqualValues(160, n)

	p := make([]byte, 10)
	k, err := b.ReadAt(p, 155)
	s.ErrorIs(err, io.EOF)
	s.Equal(5, k)
	s.Equal(out.Bytes()[155:], p[:5])
	_, err = b.ReadAt(p, 160)
	s.ErrorIs(err, io.EOF)

	pos, err = b.Seek(-4, io.SeekEnd)
	s.Require().NoError(err)
	s.EqualValues(156, pos)
	_, err = b.Seek(-1, io.SeekStart)
	s.ErrorIs(err, ErrInvalidOffset)

	raw := []byte(gofakeit.LetterN(50))
	_, err = b.Seek(20, io.SeekStart)
	s.Require().NoError(err)
	_, err = io.Copy(b, bytes.NewReader(raw))
	s.Require().NoError(err)
	s.EqualValues(70, b.Position())
	s.Equal(testWindowSize, b.Capacity())

	s.Require().NoError(b.Close())
	data := s.fileBytes()
	s.Require().Len(data, 160)
	s.Equal(raw, data[20:70])
	s.Equal(out.Bytes()[:20], data[:20])
	s.Equal(out.Bytes()[70:], data[70:])

	_, err = b.ReadAt(p, 0)
	s.ErrorIs(err, ErrClosed)
	_, err = b.Write(p)
	s.ErrorIs(err, ErrClosed)
}

func TestParseByteOrder(t *testing.T) {
	for in, want := range map[string]binary.ByteOrder{
		"big":    binary.BigEndian,
		"BE":     binary.BigEndian,
		"little": binary.LittleEndian,
		"le":     binary.LittleEndian,
	} {
		got, err := ParseByteOrder(in)
		if err != nil || got != want {
			t.Fatalf("ParseByteOrder(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseByteOrder("middle"); !errors.Is(err, ErrInvalidByteOrder) {
		t.Fatalf("expected ErrInvalidByteOrder, got %v", err)
	}
}
