package federation

import (
	"github.com/kailas-cloud/fedcat/internal/stream"
)

// correctOffset copies the caller's page out of an over-fetched raw stream.
//
// Records at 1-based raw positions below offset belong to earlier pages and are
// dropped; at most pageSize records (0 = no limit) are forwarded in raw order.
// final is closed with the raw hit total once the raw stream has closed.
func correctOffset(raw stream.Reader, final *stream.Stream, pageSize, offset int) {
	index := 0
	forwarded := 0
	for raw.HasMore() && (pageSize == 0 || forwarded < pageSize) {
		r, ok := raw.Take()
		if !ok {
			break
		}
		index++
		if index < offset {
			continue
		}
		final.Push(r)
		forwarded++
	}

	// The raw total is only final after every source resolved.
	<-raw.Done()
	final.CloseAndSetHits(raw.Hits())
}
