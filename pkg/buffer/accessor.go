package buffer

import "math"

// Offset-addressed accessors. They never move the cursor.

func (b *FileBuffer) ByteAt(pos int64) (byte, error) {
	p, err := b.load(pos, 1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (b *FileBuffer) Int16At(pos int64) (int16, error) {
	p, err := b.load(pos, 2)
	if err != nil {
		return 0, err
	}
	return int16(b.order.Uint16(p)), nil
}

func (b *FileBuffer) Int32At(pos int64) (int32, error) {
	p, err := b.load(pos, 4)
	if err != nil {
		return 0, err
	}
	return int32(b.order.Uint32(p)), nil
}

func (b *FileBuffer) Int64At(pos int64) (int64, error) {
	p, err := b.load(pos, 8)
	if err != nil {
		return 0, err
	}
	return int64(b.order.Uint64(p)), nil
}

func (b *FileBuffer) Float64At(pos int64) (float64, error) {
	p, err := b.load(pos, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(b.order.Uint64(p)), nil
}

// BytesAt fills dst from pos. A dst larger than the window grows the window.
func (b *FileBuffer) BytesAt(pos int64, dst []byte) error {
	p, err := b.load(pos, len(dst))
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

func (b *FileBuffer) PutByteAt(pos int64, v byte) error {
	p, err := b.store(pos, 1)
	if err != nil {
		return err
	}
	p[0] = v
	return nil
}

func (b *FileBuffer) PutInt16At(pos int64, v int16) error {
	p, err := b.store(pos, 2)
	if err != nil {
		return err
	}
	b.order.PutUint16(p, uint16(v))
	return nil
}

func (b *FileBuffer) PutInt32At(pos int64, v int32) error {
	p, err := b.store(pos, 4)
	if err != nil {
		return err
	}
	b.order.PutUint32(p, uint32(v))
	return nil
}

func (b *FileBuffer) PutInt64At(pos int64, v int64) error {
	p, err := b.store(pos, 8)
	if err != nil {
		return err
	}
	b.order.PutUint64(p, uint64(v))
	return nil
}

func (b *FileBuffer) PutFloat64At(pos int64, v float64) error {
	p, err := b.store(pos, 8)
	if err != nil {
		return err
	}
	b.order.PutUint64(p, math.Float64bits(v))
	return nil
}

func (b *FileBuffer) PutBytesAt(pos int64, src []byte) error {
	p, err := b.store(pos, len(src))
	if err != nil {
		return err
	}
	copy(p, src)
	return nil
}

// Cursor-relative accessors. The cursor advances by the width of the value
// only when the access succeeds.

func (b *FileBuffer) Position() int64 {
	return b.position
}

// SetPosition moves the cursor without any I/O.
func (b *FileBuffer) SetPosition(pos int64) {
	b.position = pos
}

func (b *FileBuffer) Skip(n int) {
	b.position += int64(n)
}

func (b *FileBuffer) GetByte() (byte, error) {
	v, err := b.ByteAt(b.position)
	if err == nil {
		b.position++
	}
	return v, err
}

func (b *FileBuffer) GetInt16() (int16, error) {
	v, err := b.Int16At(b.position)
	if err == nil {
		b.position += 2
	}
	return v, err
}

func (b *FileBuffer) GetInt32() (int32, error) {
	v, err := b.Int32At(b.position)
	if err == nil {
		b.position += 4
	}
	return v, err
}

func (b *FileBuffer) GetInt64() (int64, error) {
	v, err := b.Int64At(b.position)
	if err == nil {
		b.position += 8
	}
	return v, err
}

func (b *FileBuffer) GetFloat64() (float64, error) {
	v, err := b.Float64At(b.position)
	if err == nil {
		b.position += 8
	}
	return v, err
}

func (b *FileBuffer) GetBytes(dst []byte) error {
	if err := b.BytesAt(b.position, dst); err != nil {
		return err
	}
	b.position += int64(len(dst))
	return nil
}

func (b *FileBuffer) PutByte(v byte) error {
	if err := b.PutByteAt(b.position, v); err != nil {
		return err
	}
	b.position++
	return nil
}

func (b *FileBuffer) PutInt16(v int16) error {
	if err := b.PutInt16At(b.position, v); err != nil {
		return err
	}
	b.position += 2
	return nil
}

func (b *FileBuffer) PutInt32(v int32) error {
	if err := b.PutInt32At(b.position, v); err != nil {
		return err
	}
	b.position += 4
	return nil
}

func (b *FileBuffer) PutInt64(v int64) error {
	if err := b.PutInt64At(b.position, v); err != nil {
		return err
	}
	b.position += 8
	return nil
}

func (b *FileBuffer) PutFloat64(v float64) error {
	if err := b.PutFloat64At(b.position, v); err != nil {
		return err
	}
	b.position += 8
	return nil
}

func (b *FileBuffer) PutBytes(src []byte) error {
	if err := b.PutBytesAt(b.position, src); err != nil {
		return err
	}
	b.position += int64(len(src))
	return nil
}
