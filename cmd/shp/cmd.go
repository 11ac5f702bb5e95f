package shp

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/afeish/flatio/cmd"
	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/afeish/flatio/pkg/dbf"
	"github.com/afeish/flatio/pkg/shp"
	"github.com/afeish/flatio/pkg/source"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	flagNameArea    = "area"
	flagNameGeoJSON = "geojson"
	flagNameIndent  = "indent"
)

func CmdShp() *cli.Command {
	return &cli.Command{
		Name:  "shp",
		Usage: "convert shapefiles from and to GeoJSON",
		Subcommands: []*cli.Command{
			cmdDump(),
			cmdImport(),
		},
	}
}

// siblings returns the .shx and .dbf next to a .shp, empty when missing.
func siblings(fs afero.Fs, name string) (shx, table string) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, ext := range []string{".shx", ".SHX"} {
		if ok, _ := afero.Exists(fs, base+ext); ok {
			shx = base + ext
			break
		}
	}
	for _, ext := range []string{".dbf", ".DBF"} {
		if ok, _ := afero.Exists(fs, base+ext); ok {
			table = base + ext
			break
		}
	}
	return shx, table
}

func cmdDump() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "print a shapefile as a GeoJSON feature collection, attributes from the sibling .dbf",
		Flags: append(cmd.BufferFlags(),
			&cli.BoolFlag{
				Name:  flagNameArea,
				Usage: "add the planar area of polygons as property \"area\"",
			},
			&cli.BoolFlag{
				Name:  flagNameIndent,
				Usage: "indent the output",
			},
		),
		Action: func(c *cli.Context) (err error) {
			reg, err := source.NewRegistry(cmd.AppFs,
				source.WithBufferOptions(cmd.BufferOptions(c)...),
				source.WithLogger(GetLogger()),
			)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, reg.Purge())
			}()

			fc, err := dump(reg, c.Path(cmd.FlagNameFile), c.Bool(flagNameArea))
			if err != nil {
				return err
			}

			var data []byte
			if c.Bool(flagNameIndent) {
				data, err = marshalIndent(fc)
			} else {
				data, err = fc.MarshalJSON()
			}
			if err != nil {
				return err
			}
			_, err = c.App.Writer.Write(append(data, '\n'))
			return err
		},
	}
}

// dump reads every non-null shape of name into a feature collection.
func dump(reg *source.Registry, name string, area bool) (*geojson.FeatureCollection, error) {
	lg := GetLogger()
	shxName, tableName := siblings(cmd.AppFs, name)
	names := []string{name}
	if shxName != "" {
		names = append(names, shxName)
	}
	if tableName != "" {
		names = append(names, tableName)
	}

	fc := geojson.NewFeatureCollection()
	err := reg.WithAll(names, func(bs []*buffer.FileBuffer) error {
		var shx *buffer.FileBuffer
		if shxName != "" {
			shx = bs[1]
		}
		r, err := shp.NewReader(bs[0], shx, shp.WithLogger(lg))
		if err != nil {
			return err
		}

		var table *dbf.Reader
		if tableName != "" {
			if table, err = dbf.NewReader(bs[len(bs)-1], dbf.WithLogger(lg)); err != nil {
				return err
			}
		}

		for {
			rec, err := r.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if rec.Geometry == nil {
				lg.Debug("skip null shape", zap.Int("record", rec.Number))
				continue
			}

			f := geojson.NewFeature(rec.Geometry)
			f.ID = rec.Number
			if table != nil && rec.Number <= table.NumRecords() {
				i := rec.Number - 1
				deleted, err := table.Deleted(i)
				if err != nil {
					return err
				}
				if deleted {
					continue
				}
				props, err := table.Record(i)
				if err != nil {
					return err
				}
				f.Properties = props
			}
			if area {
				switch rec.Geometry.(type) {
				case orb.Polygon, orb.MultiPolygon:
					f.Properties["area"] = planar.Area(rec.Geometry)
				}
			}
			fc.Append(f)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "dump %s", name)
	}
	return fc, nil
}
