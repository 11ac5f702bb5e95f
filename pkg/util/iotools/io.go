package iotools

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/afeish/flatio/pkg/util/size"
	"github.com/spf13/afero"
)

// RandFile creates a temp file of sz random bytes in dir on fs and returns
// its name and md5.
func RandFile(fs afero.Fs, dir, prefix string, sz int64) (string, string, error) {
	fOut, err := afero.TempFile(fs, dir, fmt.Sprintf("%s-%s-", prefix, size.SizeSuffix(sz).String()))
	if err != nil {
		return "", "", err
	}
	defer fOut.Close()

	h := md5.New()
	if _, err = io.Copy(fOut, io.TeeReader(io.LimitReader(rand.Reader, sz), h)); err != nil {
		return "", "", err
	}
	return fOut.Name(), hex.EncodeToString(h.Sum(nil)), nil
}

// MD5 hashes the whole content of name on fs.
func MD5(fs afero.Fs, name string) (string, error) {
	f, err := fs.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
