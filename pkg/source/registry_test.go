package source

import (
	"fmt"
	"os"
	"testing"

	. "github.com/afeish/flatio/global" //lint:ignore ST1001 ignore
	"github.com/afeish/flatio/pkg/buffer"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type RegistryTestSuite struct {
	suite.Suite

	fs afero.Fs
	lg *zap.Logger
}

func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) SetupSuite() {
	s.lg = zap.NewNop()
}

func (s *RegistryTestSuite) SetupTest() {
	s.fs = afero.NewMemMapFs()
}

func (s *RegistryTestSuite) registry(opts ...Option[*Options]) *Registry {
	opts = append([]Option[*Options]{
		WithFlag(os.O_RDWR | os.O_CREATE),
		WithBufferOptions(buffer.WithWindowSize(16)),
		WithLogger(s.lg),
	}, opts...)
	r, err := NewRegistry(s.fs, opts...)
	s.Require().NoError(err)
	return r
}

func (s *RegistryTestSuite) counter(name string) int32 {
	data, err := afero.ReadFile(s.fs, name)
	s.Require().NoError(err)
	s.Require().GreaterOrEqual(len(data), 4)
	return int32(data[0])<<24 | int32(data[1])<<16 | int32(data[2])<<8 | int32(data[3])
}

func increment(b *buffer.FileBuffer) error {
	v, err := b.Int32At(0)
	if err != nil {
		return err
	}
	return b.PutInt32At(0, v+1)
}

func (s *RegistryTestSuite) TestReuse() {
	r := s.registry(WithSize(4))

	var first, second *buffer.FileBuffer
	s.Require().NoError(r.With("/a", func(b *buffer.FileBuffer) error {
		first = b
		return nil
	}))
	s.Require().NoError(r.With("/a", func(b *buffer.FileBuffer) error {
		second = b
		return nil
	}))
	s.Same(first, second)
	s.Equal(1, r.Len())
	s.Require().NoError(r.Purge())
	s.Equal(0, r.Len())
}

func (s *RegistryTestSuite) TestEvictionFlushes() {
	r := s.registry(WithSize(1))

	s.Require().NoError(r.With("/a", increment))
	s.Require().NoError(r.With("/b", increment))
	s.Equal(1, r.Len())
	s.EqualValues(1, s.counter("/a"), "evicted buffer is flushed")

	s.Require().NoError(r.With("/a", increment))
	s.Require().NoError(r.Close("/a"))
	s.EqualValues(2, s.counter("/a"))

	s.Require().NoError(r.Purge())
	s.EqualValues(1, s.counter("/b"))
}

func (s *RegistryTestSuite) TestWithAllOutlivesEviction() {
	r := s.registry(WithSize(1))

	s.Require().NoError(r.WithAll([]string{"/b", "/a", "/b"}, func(bs []*buffer.FileBuffer) error {
		s.Require().Len(bs, 3)
		s.Same(bs[0], bs[2])
		// /a was evicted by /b but stays usable until we return
		if err := increment(bs[0]); err != nil {
			return err
		}
		return increment(bs[1])
	}))
	s.Equal(1, r.Len())
	s.EqualValues(1, s.counter("/a"), "closed once released")

	s.Require().NoError(r.Purge())
	s.EqualValues(1, s.counter("/b"))
}

func (s *RegistryTestSuite) TestConcurrentUse() {
	r := s.registry(WithSize(2))
	names := []string{"/a", "/b", "/c"}
	const rounds = 50
	pairs := [][]string{{"/a", "/c"}, {"/c", "/b"}}

	var g errgroup.Group
	for _, name := range names {
		name := name
		for w := 0; w < 4; w++ {
			g.Go(func() error {
				for i := 0; i < rounds; i++ {
					if err := r.With(name, increment); err != nil {
						return err
					}
				}
				return nil
			})
		}
	}
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				err := r.WithAll(pair, func(bs []*buffer.FileBuffer) error {
					return multierr.Combine(increment(bs[0]), increment(bs[1]))
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Require().NoError(r.Purge())

	s.EqualValues(5*rounds, s.counter("/a"))
	s.EqualValues(5*rounds, s.counter("/b"))
	s.EqualValues(6*rounds, s.counter("/c"))
}

func (s *RegistryTestSuite) TestMissingFile() {
	r := s.registry(WithFlag(os.O_RDONLY))

	err := r.With("/missing", func(*buffer.FileBuffer) error {
		s.Fail("must not run")
		return nil
	})
	s.ErrorIs(err, ErrSourceUnavailable)
	var ue *UnavailableError
	s.Require().True(errors.As(err, &ue))
	s.Equal("/missing", ue.Name)
	s.Equal(0, r.Len())
}

func (s *RegistryTestSuite) TestWriteFailureDropsSource() {
	s.Require().NoError(afero.WriteFile(s.fs, "/ro", make([]byte, 8), 0o644))
	r := s.registry(WithFlag(os.O_RDONLY))

	err := r.With("/ro", func(b *buffer.FileBuffer) error {
		if err := b.PutInt32At(0, 7); err != nil {
			return err
		}
		return b.Flush()
	})
	s.ErrorIs(err, ErrSourceUnavailable)
	s.Equal(0, r.Len())
}

func (s *RegistryTestSuite) TestDomainErrorsPassThrough() {
	r := s.registry()
	want := errors.New(gofakeit.Sentence(4))

	err := r.With("/a", func(*buffer.FileBuffer) error {
		return want
	})
	s.ErrorIs(err, want)
	s.NotErrorIs(err, ErrSourceUnavailable)
	s.Equal(1, r.Len())
}

func TestUnavailableErrorMessage(t *testing.T) {
	err := &UnavailableError{Name: "/x", Err: errors.New("boom")}
	if got, want := err.Error(), fmt.Sprintf("%s: /x: boom", ErrSourceUnavailable); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
