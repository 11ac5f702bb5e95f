package global

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/afeish/flatio/pkg/util/size"
	"github.com/caarlos0/env/v8"
	"github.com/pkg/errors"
)

var (
	_envCfgFactory = &envCfgFactory{}
)

type envCfgFactory struct {
	mu sync.RWMutex

	cfgOnce sync.Once
	cfg     *EnvCfg
}

func (f *envCfgFactory) get() *EnvCfg {
	f.cfgOnce.Do(func() {
		f.cfg = _getEnvCfgNow()
	})
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

func (f *envCfgFactory) reload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = _getEnvCfgNow()
}

type EnvCfg struct {
	Test bool `env:"FLATIO_TEST"  envDefault:"false"`
	Log  struct {
		Level       string `env:"FLATIO_LOG_LEVEL" envDefault:"info"`
		FileEnabled bool   `env:"FLATIO_LOG_FILE_ENABLED"  envDefault:"false"`
		Dir         string `env:"FLATIO_LOG_DIR"  envDefault:"/tmp/flatio"`
	}
	Buffer struct {
		WindowSize size.SizeSuffix `env:"FLATIO_WINDOW_SIZE" envDefault:"32K"`
		ByteOrder  string          `env:"FLATIO_BYTE_ORDER" envDefault:"big"` // big or little
	}
	Source struct {
		CacheSize int `env:"FLATIO_SOURCE_CACHE_SIZE" envDefault:"16"`
	}
	Dbf struct {
		Codepage byte `env:"FLATIO_DBF_CODEPAGE" envDefault:"0"` // language driver id used when the header carries none
	}
}

func GetEnvCfg() *EnvCfg {
	return _envCfgFactory.get()
}

func ReloadEnvCfg() {
	_envCfgFactory.reload()
}

func _getEnvCfgNow() *EnvCfg {
	cfg := &EnvCfg{}

	opts := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(size.Byte): func(v string) (interface{}, error) {
				x := size.SizeSuffix(0)
				err := x.Set(v)
				if err != nil {
					return nil, errors.Wrapf(err, "unable to parse size")
				}
				return x, err
			},
		},
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		fmt.Printf("%+v\n", err)
	}
	return cfg
}
