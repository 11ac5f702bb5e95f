package shp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/afeish/flatio/cmd"
	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/afeish/flatio/pkg/dbf"
	"github.com/afeish/flatio/pkg/shp"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	maxCharLen   = 254
	numberLen    = 18
	floatDecimal = 6
)

func cmdImport() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "write a GeoJSON feature collection as .shp, .shx and .dbf",
		Flags: append(cmd.BufferFlags(),
			&cli.PathFlag{
				Name:     flagNameGeoJSON,
				Usage:    "GeoJSON file to read",
				Required: true,
				Aliases:  []string{"i"},
			},
		),
		Action: func(c *cli.Context) error {
			data, err := afero.ReadFile(cmd.AppFs, c.Path(flagNameGeoJSON))
			if err != nil {
				return err
			}
			fc, err := geojson.UnmarshalFeatureCollection(data)
			if err != nil {
				return errors.Wrapf(err, "parse %s", c.Path(flagNameGeoJSON))
			}
			n, err := importFeatures(fc, c.Path(cmd.FlagNameFile), cmd.BufferOptions(c)...)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "wrote %d records to %s\n", n, c.Path(cmd.FlagNameFile))
			return nil
		},
	}
}

// importFeatures writes fc as a shapefile triple next to name and returns
// the number of records.
func importFeatures(fc *geojson.FeatureCollection, name string, opts ...Option[*buffer.Options]) (n int, err error) {
	lg := GetLogger()

	t := shp.Null
	for _, f := range fc.Features {
		ft, err := shp.TypeOf(f.Geometry)
		if err != nil {
			return 0, err
		}
		if ft != shp.Null {
			t = ft
			break
		}
	}
	if t == shp.Null {
		return 0, errors.Wrap(shp.ErrUnsupportedShape, "no geometry to infer the shape type from")
	}

	fields, keys := inferFields(fc.Features)
	lg.Debug("import features", zap.Stringer("type", t), zap.Int("features", len(fc.Features)), zap.Strings("fields", keys))

	base := strings.TrimSuffix(name, filepath.Ext(name))
	var bufs []*buffer.FileBuffer
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		b, err := buffer.OpenFile(cmd.AppFs, base+ext, os.O_RDWR|os.O_CREATE|os.O_TRUNC, opts...)
		if err != nil {
			for _, b := range bufs {
				err = multierr.Append(err, b.Close())
			}
			return 0, err
		}
		bufs = append(bufs, b)
	}

	sw, err := shp.NewWriter(bufs[0], bufs[1], t, shp.WithLogger(lg))
	if err != nil {
		return 0, multierr.Combine(err, bufs[0].Close(), bufs[1].Close(), bufs[2].Close())
	}
	defer func() {
		err = multierr.Append(err, sw.Close())
	}()

	if len(fields) == 0 {
		// a table needs at least one column
		fields = []dbf.Field{{Name: "ID", Type: dbf.Number, Length: 10}}
	}
	tw, err := dbf.NewWriter(bufs[2], fields, dbf.WithLogger(lg))
	if err != nil {
		return 0, multierr.Append(err, bufs[2].Close())
	}
	defer func() {
		err = multierr.Append(err, tw.Close())
	}()

	for i, f := range fc.Features {
		if _, err := sw.Write(f.Geometry); err != nil {
			return n, errors.Wrapf(err, "feature %d", i)
		}
		// fields and keys are parallel unless the ID fallback is in use
		values := lo.Map(fields, func(field dbf.Field, j int) any {
			if len(keys) == 0 {
				return i + 1
			}
			return fieldValue(field, f.Properties[keys[j]])
		})
		if err := tw.Append(values...); err != nil {
			return n, errors.Wrapf(err, "feature %d", i)
		}
		n++
	}
	return n, nil
}

// inferFields derives one column per property key, in sorted key order.
// A key whose values disagree on type becomes a character column.
func inferFields(features []*geojson.Feature) ([]dbf.Field, []string) {
	kinds := map[string]dbf.FieldType{}
	lengths := map[string]int{}
	for _, f := range features {
		for k, v := range f.Properties {
			if v == nil {
				if _, ok := kinds[k]; !ok {
					kinds[k] = 0
				}
				continue
			}
			kind := inferType(v)
			switch prev := kinds[k]; {
			case prev == 0:
				kinds[k] = kind
			case prev == dbf.Number && kind == dbf.Float, prev == dbf.Float && kind == dbf.Number:
				kinds[k] = dbf.Float
			case prev != kind:
				kinds[k] = dbf.Character
			}
			lengths[k] = Max(lengths[k], len(fmt.Sprint(v)))
		}
	}

	keys := lo.Keys(kinds)
	sort.Strings(keys)

	seen := map[string]bool{}
	var (
		fields []dbf.Field
		used   []string
	)
	for _, k := range keys {
		name := strings.ToUpper(k)
		if len(name) > 10 {
			name = name[:10]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		f := dbf.Field{Name: name, Type: kinds[k]}
		switch f.Type {
		case dbf.Logical:
			f.Length = 1
		case dbf.Number:
			f.Length = numberLen
		case dbf.Float:
			f.Length, f.Decimals = numberLen, floatDecimal
		default:
			f.Type = dbf.Character
			f.Length = uint8(Min(Max(lengths[k], 1), maxCharLen))
		}
		fields = append(fields, f)
		used = append(used, k)
	}
	return fields, used
}

func inferType(v any) dbf.FieldType {
	switch v := v.(type) {
	case bool:
		return dbf.Logical
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return dbf.Number
		}
		return dbf.Float
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return dbf.Number
		}
		return dbf.Float
	}
	return dbf.Character
}

func fieldValue(f dbf.Field, v any) any {
	if v == nil {
		return nil
	}
	switch f.Type {
	case dbf.Number:
		if x, ok := v.(float64); ok {
			return int64(x)
		}
	case dbf.Character:
		s := fmt.Sprint(v)
		if len(s) > int(f.Length) {
			s = s[:f.Length]
		}
		return s
	}
	return v
}

func marshalIndent(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
