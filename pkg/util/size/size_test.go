package size

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeSuffixSet(t *testing.T) {
	tests := []struct {
		in   string
		want SizeSuffix
	}{
		{"32K", 32 * KibiByte},
		{"16k", 16 * KibiByte},
		{"4M", 4 * MebiByte},
		{"1G", GibiByte},
		{"512", 512},
		{"2 KiB", 2 * KibiByte},
		{"1kB", 1000},
		{"off", -1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var x SizeSuffix
			require.NoError(t, x.Set(tt.in))
			require.Equal(t, tt.want, x)
		})
	}
}

func TestSizeSuffixRoundTrip(t *testing.T) {
	x := 32 * KibiByte
	var y SizeSuffix
	require.NoError(t, y.Set(x.String()))
	require.Equal(t, x, y)
}

func TestSizeSuffixInvalid(t *testing.T) {
	var x SizeSuffix
	require.Error(t, x.Set(""))
	require.Error(t, x.Set("lots"))
}

func TestReadSummary(t *testing.T) {
	require.Equal(t, "01 02", ReadSummary([]byte{1, 2}, 4))
	require.Equal(t, "01 02 ...2", ReadSummary([]byte{1, 2, 3, 4}, 2))
}
