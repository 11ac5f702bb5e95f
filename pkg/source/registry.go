// Package source keeps a bounded set of open file buffers keyed by name.
// Each buffer is used by one caller at a time.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

var ErrSourceUnavailable = errors.New("source unavailable")

// UnavailableError reports a file that could not be opened, read, written
// or closed. It matches ErrSourceUnavailable.
type UnavailableError struct {
	Name string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSourceUnavailable, e.Name, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

type Options struct {
	Size          int
	Flag          int
	BufferOptions []Option[*buffer.Options]
	Logger        *zap.Logger
}

func WithSize(n int) Option[*Options] {
	return OptionFunc[*Options](func(opts *Options) {
		opts.Size = n
	})
}

// WithFlag sets the os.OpenFile flags, os.O_RDONLY by default.
func WithFlag(flag int) Option[*Options] {
	return OptionFunc[*Options](func(opts *Options) {
		opts.Flag = flag
	})
}

func WithBufferOptions(opts ...Option[*buffer.Options]) Option[*Options] {
	return OptionFunc[*Options](func(o *Options) {
		o.BufferOptions = append(o.BufferOptions, opts...)
	})
}

func WithLogger(lg *zap.Logger) Option[*Options] {
	return OptionFunc[*Options](func(opts *Options) {
		opts.Logger = lg
	})
}

type entry struct {
	name string
	mu   sync.Mutex // held by the caller using b
	b    *buffer.FileBuffer

	// guarded by Registry.mu
	pins    int
	evicted bool
}

// Registry opens buffers on demand and keeps the most recently used ones
// open. A buffer evicted while in use is closed when its last user is done.
type Registry struct {
	fs   afero.Fs
	opts Options

	mu      sync.Mutex
	cache   *lru.Cache[string, *entry]
	zombies map[string]*entry // evicted but still pinned
	errs    error             // close errors not yet returned to a caller

	lg *zap.Logger
}

func NewRegistry(fs afero.Fs, opts ...Option[*Options]) (*Registry, error) {
	o := Options{
		Size:   GetEnvCfg().Source.CacheSize,
		Flag:   os.O_RDONLY,
		Logger: zap.NewNop(),
	}
	ApplyOptions(&o, opts...)

	r := &Registry{
		fs:      fs,
		opts:    o,
		zombies: map[string]*entry{},
		lg:      o.Logger.Named("source"),
	}
	cache, err := lru.NewWithEvict[string, *entry](o.Size, r.onEvict)
	if err != nil {
		return nil, errors.Wrapf(err, "source cache of %d", o.Size)
	}
	r.cache = cache
	return r, nil
}

// onEvict runs inside cache calls, all of which hold r.mu.
func (r *Registry) onEvict(name string, e *entry) {
	e.evicted = true
	if e.pins > 0 {
		r.zombies[name] = e
		return
	}
	r.errs = multierr.Append(r.errs, r.closeEntry(e))
}

func (r *Registry) closeEntry(e *entry) error {
	err := e.b.Close()
	r.lg.Debug("close source", zap.String("name", e.name), zap.Error(err))
	if err != nil {
		return &UnavailableError{Name: e.name, Err: err}
	}
	return nil
}

func (r *Registry) drain() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.errs
	r.errs = nil
	return err
}

// pin returns the entry of name, opening or reviving it, and keeps it from
// being closed until unpin.
func (r *Registry) pin(name string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cache.Get(name)
	if !ok {
		if z, found := r.zombies[name]; found {
			delete(r.zombies, name)
			z.evicted = false
			e = z
		} else {
			b, err := buffer.OpenFile(r.fs, name, r.opts.Flag, r.opts.BufferOptions...)
			if err != nil {
				return nil, &UnavailableError{Name: name, Err: err}
			}
			e = &entry{name: name, b: b}
			r.lg.Debug("open source", zap.String("name", name))
		}
		r.cache.Add(name, e)
	}
	e.pins++
	return e, nil
}

func (r *Registry) unpin(e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.pins--
	if e.pins > 0 || !e.evicted {
		return nil
	}
	delete(r.zombies, e.name)
	return r.closeEntry(e)
}

// With runs fn on the buffer of name, opening it if needed.
func (r *Registry) With(name string, fn func(*buffer.FileBuffer) error) error {
	return r.WithAll([]string{name}, func(bs []*buffer.FileBuffer) error {
		return fn(bs[0])
	})
}

// WithAll runs fn with the buffers of names, in the same order. fn has the
// buffers to itself and must not call back into the registry. An I/O
// failure inside fn drops the buffers from the registry and is returned as
// an UnavailableError.
func (r *Registry) WithAll(names []string, fn func([]*buffer.FileBuffer) error) (err error) {
	keys := lo.Uniq(names)
	slices.Sort(keys) // lock order

	entries := make(map[string]*entry, len(keys))
	defer func() {
		for _, e := range entries {
			err = multierr.Append(err, r.unpin(e))
		}
	}()
	for _, k := range keys {
		e, perr := r.pin(k)
		if perr != nil {
			return perr
		}
		entries[k] = e
	}

	for _, k := range keys {
		entries[k].mu.Lock()
	}
	err = fn(lo.Map(names, func(name string, _ int) *buffer.FileBuffer {
		return entries[name].b
	}))
	for _, k := range keys {
		entries[k].mu.Unlock()
	}

	if err != nil && isIOError(err) {
		for _, k := range keys {
			r.remove(k)
		}
		return &UnavailableError{Name: strings.Join(keys, ","), Err: err}
	}
	return err
}

func isIOError(err error) bool {
	var pe *fs.PathError
	return errors.As(err, &pe) || errors.Is(err, buffer.ErrShortWrite)
}

func (r *Registry) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(name)
}

// Close flushes and closes the buffer of name. A buffer in use is closed
// by its last user instead.
func (r *Registry) Close(name string) error {
	r.remove(name)
	return r.drain()
}

// Purge closes every buffer not in use and releases the rest.
func (r *Registry) Purge() error {
	r.mu.Lock()
	r.cache.Purge()
	r.mu.Unlock()
	return r.drain()
}

// Len is the number of cached buffers.
func (r *Registry) Len() int {
	return r.cache.Len()
}
