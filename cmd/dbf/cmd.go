package dbf

import (
	"fmt"
	"io"
	"os"

	"github.com/afeish/flatio/cmd"
	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/afeish/flatio/pkg/dbf"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

const (
	flagNameCodepage    = "codepage"
	flagNameShowDeleted = "deleted"
	flagNameLimit       = "limit"
)

func CmdDbf() *cli.Command {
	return &cli.Command{
		Name:  "dbf",
		Usage: "inspect dBase tables",
		Subcommands: []*cli.Command{
			cmdInfo(),
			cmdDump(),
		},
	}
}

func tableFlags() []cli.Flag {
	return append(cmd.BufferFlags(), &cli.UintFlag{
		Name:    flagNameCodepage,
		Usage:   "language driver id used when the header carries none",
		EnvVars: []string{"FLATIO_DBF_CODEPAGE"},
		Value:   uint(GetEnvCfg().Dbf.Codepage),
		Aliases: []string{"cp"},
	})
}

// withReader opens the table named by the flags of c and runs fn on it.
func withReader(c *cli.Context, fn func(*dbf.Reader) error) (err error) {
	b, err := buffer.OpenFile(cmd.AppFs, c.Path(cmd.FlagNameFile), os.O_RDONLY, cmd.BufferOptions(c)...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, b.Close())
	}()

	r, err := dbf.NewReader(b,
		dbf.WithCodepage(byte(c.Uint(flagNameCodepage))),
		dbf.WithLogger(GetLogger()),
	)
	if err != nil {
		return err
	}
	return fn(r)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetRowLine(true)
	table.SetAutoFormatHeaders(false)
	return table
}

func cmdInfo() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "print the header and field descriptors",
		Flags: tableFlags(),
		Action: func(c *cli.Context) error {
			return withReader(c, func(r *dbf.Reader) error {
				h := r.Header()
				fmt.Fprintf(c.App.Writer,
					"Version:  %#x\n"+
						"Updated:  %s\n"+
						"Records:  %d\n"+
						"Header:   %d bytes\n"+
						"Record:   %d bytes\n"+
						"Language: %#x\n",
					h.Version, h.Updated.Format("2006-01-02"), h.NumRecords, h.HeaderLen, h.RecordLen, h.LanguageDriver)

				table := newTable(c.App.Writer, []string{"idx", "NAME", "TYPE", "LENGTH", "DECIMALS"})
				table.AppendBulk(lo.Map(r.Fields(), func(f dbf.Field, i int) []string {
					return []string{fmt.Sprint(i), f.Name, f.Type.String(), fmt.Sprint(f.Length), fmt.Sprint(f.Decimals)}
				}))
				table.Render()
				return nil
			})
		},
	}
}

func cmdDump() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "print the records",
		Flags: append(tableFlags(),
			&cli.BoolFlag{
				Name:  flagNameShowDeleted,
				Usage: "include records flagged as deleted",
			},
			&cli.IntFlag{
				Name:    flagNameLimit,
				Usage:   "print at most this many records, 0 for all",
				Aliases: []string{"n"},
			},
		),
		Action: func(c *cli.Context) error {
			return withReader(c, func(r *dbf.Reader) error {
				header := append([]string{"idx"}, lo.Map(r.Fields(), func(f dbf.Field, _ int) string {
					return f.Name
				})...)
				table := newTable(c.App.Writer, header)

				limit, rows := c.Int(flagNameLimit), 0
				for i := 0; i < r.NumRecords(); i++ {
					if limit > 0 && rows >= limit {
						break
					}
					deleted, err := r.Deleted(i)
					if err != nil {
						return err
					}
					if deleted && !c.Bool(flagNameShowDeleted) {
						continue
					}
					row := []string{IfOr(deleted, fmt.Sprintf("%d*", i), fmt.Sprint(i))}
					for f := range r.Fields() {
						v, err := r.Value(i, f)
						if err != nil {
							return err
						}
						row = append(row, IfOr(v == nil, "", fmt.Sprint(v)))
					}
					table.Append(row)
					rows++
				}
				table.Render()
				return nil
			})
		},
	}
}
