package buf

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/afeish/flatio/cmd"
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/afeish/flatio/pkg/util/size"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

const (
	flagNameOffset = "offset"
	flagNameWidth  = "width"
	flagNameValue  = "value"
	flagNameLength = "length"

	maxHexBytes = 64
)

func CmdBuf() *cli.Command {
	return &cli.Command{
		Name:    "buf",
		Usage:   "typed access to raw files",
		Aliases: []string{"b"},
		Subcommands: []*cli.Command{
			cmdPeek(),
			cmdPoke(),
			cmdStat(),
		},
	}
}

func accessFlags() []cli.Flag {
	return append(cmd.BufferFlags(),
		cmd.OrderFlag(),
		&cli.Int64Flag{
			Name:     flagNameOffset,
			Usage:    "absolute byte offset",
			Required: true,
			Aliases:  []string{"at"},
		},
		&cli.StringFlag{
			Name:  flagNameWidth,
			Usage: "value type. Valid options are byte,int16,int32,int64,float64 and, for peek, hex",
			Value: "int32",
		},
	)
}

func open(c *cli.Context, flag int) (*buffer.FileBuffer, error) {
	order, err := cmd.Order(c)
	if err != nil {
		return nil, err
	}
	opts := append(cmd.BufferOptions(c), buffer.WithByteOrder(order))
	return buffer.OpenFile(cmd.AppFs, c.Path(cmd.FlagNameFile), flag, opts...)
}

func cmdPeek() *cli.Command {
	return &cli.Command{
		Name:  "peek",
		Usage: "print the value at an offset",
		Flags: append(accessFlags(), &cli.IntFlag{
			Name:    flagNameLength,
			Usage:   "bytes to show with --width hex, stopping at the end of file",
			Value:   16,
			Aliases: []string{"n"},
		}),
		Action: func(c *cli.Context) (err error) {
			b, err := open(c, os.O_RDONLY)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, b.Close())
			}()

			v, err := peek(b, c.Int64(flagNameOffset), c.String(flagNameWidth), c.Int(flagNameLength))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, v)
			return nil
		},
	}
}

func cmdPoke() *cli.Command {
	return &cli.Command{
		Name:  "poke",
		Usage: "write a value at an offset, extending the file when needed",
		Flags: append(accessFlags(), &cli.StringFlag{
			Name:     flagNameValue,
			Usage:    "value to write",
			Required: true,
			Aliases:  []string{"v"},
		}),
		Action: func(c *cli.Context) (err error) {
			b, err := open(c, os.O_RDWR|os.O_CREATE)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, b.Close())
			}()

			return poke(b, c.Int64(flagNameOffset), c.String(flagNameWidth), c.String(flagNameValue))
		},
	}
}

func cmdStat() *cli.Command {
	return &cli.Command{
		Name:  "stat",
		Usage: "print length, logical end and window size",
		Flags: cmd.BufferFlags(),
		Action: func(c *cli.Context) (err error) {
			b, err := buffer.OpenFile(cmd.AppFs, c.Path(cmd.FlagNameFile), os.O_RDONLY, cmd.BufferOptions(c)...)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, b.Close())
			}()

			length, err := b.Length()
			if err != nil {
				return err
			}
			eofPos, err := b.EOFPosition()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer,
				"File:   %s\n"+
					"Length: %s (%d)\n"+
					"EOF:    %d\n"+
					"Window: %s\n",
				b.Name(), humanize.IBytes(uint64(length)), length, eofPos, humanize.IBytes(uint64(b.Capacity())))
			return nil
		},
	}
}

func peek(b *buffer.FileBuffer, off int64, width string, length int) (string, error) {
	switch width {
	case "hex":
		if length < 0 {
			return "", errors.Errorf("negative length %d", length)
		}
		data := make([]byte, length)
		n, err := b.ReadAt(data, off)
		if err != nil && err != io.EOF {
			return "", err
		}
		return size.ReadSummary(data[:n], maxHexBytes), nil
	case "byte":
		v, err := b.ByteAt(off)
		return strconv.Itoa(int(v)), err
	case "int16":
		v, err := b.Int16At(off)
		return strconv.Itoa(int(v)), err
	case "int32":
		v, err := b.Int32At(off)
		return strconv.Itoa(int(v)), err
	case "int64":
		v, err := b.Int64At(off)
		return strconv.FormatInt(v, 10), err
	case "float64":
		v, err := b.Float64At(off)
		return strconv.FormatFloat(v, 'g', -1, 64), err
	}
	return "", errors.Errorf("unknown width %q", width)
}

func poke(b *buffer.FileBuffer, off int64, width, value string) error {
	if width == "float64" {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Wrapf(err, "parse %q", value)
		}
		return b.PutFloat64At(off, v)
	}

	bits := map[string]int{"byte": 8, "int16": 16, "int32": 32, "int64": 64}[width]
	if bits == 0 {
		return errors.Errorf("unknown width %q", width)
	}
	v, err := strconv.ParseInt(value, 0, bits)
	if err != nil && bits == 8 {
		// bytes may be given unsigned
		var u uint64
		u, err = strconv.ParseUint(value, 0, 8)
		v = int64(u)
	}
	if err != nil {
		return errors.Wrapf(err, "parse %q as %s", value, width)
	}

	switch bits {
	case 8:
		return b.PutByteAt(off, byte(v))
	case 16:
		return b.PutInt16At(off, int16(v))
	case 32:
		return b.PutInt32At(off, int32(v))
	}
	return b.PutInt64At(off, v)
}
