// Package dispatch sends matched candidates in bounded, sequential chunks.
// Candidates inside a chunk are sent concurrently; the next chunk starts only
// after every send in the current one has finished.
package dispatch

// Chunk partitions items into consecutive slices of at most size elements,
// preserving order. A size below 1 is treated as 1. The returned chunks share
// the backing array of items.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
