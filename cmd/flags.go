package cmd

import (
	"encoding/binary"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/afeish/flatio/pkg/util/size"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

const (
	FlagNameFile   = "file"
	FlagNameWindow = "window"
	FlagNameOrder  = "order"

	FlagNameLogLevel       = "log-level"
	FlagNameLogFileEnabled = "log-file-enabled"
	FlagNameLogDir         = "log-dir"
)

var (
	cfg = GetEnvCfg()

	// AppFs is where commands open their files.
	AppFs afero.Fs = afero.NewOsFs()

	GlobalFlags = []cli.Flag{
		&cli.StringFlag{
			Name:        FlagNameLogLevel,
			Usage:       "log level. Valid options are debug,info,warning,error",
			EnvVars:     []string{"FLATIO_LOG_LEVEL"},
			Value:       cfg.Log.Level,
			Destination: &cfg.Log.Level,
			Aliases:     []string{"level"},
			Category:    "global flags",
		},
		&cli.BoolFlag{
			Name:        FlagNameLogFileEnabled,
			EnvVars:     []string{"FLATIO_LOG_FILE_ENABLED"},
			Usage:       "whether enable the log to file.",
			Value:       cfg.Log.FileEnabled,
			Destination: &cfg.Log.FileEnabled,
			Category:    "global flags",
		},
		&cli.StringFlag{
			Name:        FlagNameLogDir,
			EnvVars:     []string{"FLATIO_LOG_DIR"},
			Usage:       "log dir",
			Value:       cfg.Log.Dir,
			Destination: &cfg.Log.Dir,
			Category:    "global flags",
		},
	}
)

// BufferFlags are shared by every command that opens a file buffer.
func BufferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{
			Name:     FlagNameFile,
			Usage:    "path of the file to open",
			Required: true,
			Aliases:  []string{"f"},
		},
		&cli.GenericFlag{
			Name:    FlagNameWindow,
			Usage:   "size of the in-memory window",
			EnvVars: []string{"FLATIO_WINDOW_SIZE"},
			Value:   NewSizeSuffixFlag(cfg.Buffer.WindowSize),
			Aliases: []string{"w"},
		},
	}
}

// BufferOptions builds the buffer options from the flags of c.
func BufferOptions(c *cli.Context) []Option[*buffer.Options] {
	opts := []Option[*buffer.Options]{buffer.WithLogger(GetLogger())}
	if f, ok := c.Generic(FlagNameWindow).(*SizeSuffixFlag); ok && f.Get() > 0 {
		opts = append(opts, buffer.WithWindowSize(f.Get().Int()))
	}
	return opts
}

func OrderFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    FlagNameOrder,
		Usage:   "byte order. Valid options are big,little",
		EnvVars: []string{"FLATIO_BYTE_ORDER"},
		Value:   cfg.Buffer.ByteOrder,
		Aliases: []string{"o"},
	}
}

func Order(c *cli.Context) (binary.ByteOrder, error) {
	order, err := buffer.ParseByteOrder(c.String(FlagNameOrder))
	if err != nil {
		return nil, errors.Wrapf(err, "--%s %q", FlagNameOrder, c.String(FlagNameOrder))
	}
	return order, nil
}

type SizeSuffixFlag struct {
	sz size.SizeSuffix
}

func NewSizeSuffixFlag(sz size.SizeSuffix) *SizeSuffixFlag {
	return &SizeSuffixFlag{sz: sz}
}

func (k *SizeSuffixFlag) Set(value string) error {
	var x size.SizeSuffix
	if err := x.Set(value); err != nil {
		return errors.Wrapf(err, "err set sizeSuffix")
	}
	k.sz = x
	return nil
}

func (k *SizeSuffixFlag) String() string {
	return k.sz.String()
}

func (k *SizeSuffixFlag) Get() size.SizeSuffix {
	return k.sz
}
