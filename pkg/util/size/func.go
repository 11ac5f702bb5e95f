package size

import "fmt"

// ReadSummary renders at most size bytes of data as hex, noting how many were left out.
func ReadSummary(data []byte, size int) string {
	if len(data) <= size {
		return fmt.Sprintf("% x", data)
	}
	return fmt.Sprintf("% x ...%d", data[:size], len(data)-size)
}
