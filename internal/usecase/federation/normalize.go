package federation

// NormalizeOffset derives the paging every source can be asked for independently.
//
// A single source, or a query starting at the first record, pages natively.
// Otherwise there is no cross-source order before the merge, so every source
// must return everything from its own first record through the caller's last
// one, and the merged stream is trimmed afterwards.
// The synthetic page never exceeds maxStartIndex; pageSize 0 stays unbounded.
func NormalizeOffset(offset, pageSize, sourceCount, maxStartIndex int) (perSourceOffset, perSourcePageSize int, needsCorrection bool) {
	if offset <= 1 || sourceCount <= 1 {
		return offset, pageSize, false
	}
	if pageSize == 0 {
		return 1, 0, true
	}
	size := offset + pageSize - 1
	if maxStartIndex > 0 && size > maxStartIndex {
		size = maxStartIndex
	}
	return 1, size, true
}

// clampStart bounds a requested offset by the configured maximum start index.
func clampStart(offset, maxStartIndex int) int {
	if offset < 1 {
		return 1
	}
	if offset > maxStartIndex {
		return maxStartIndex
	}
	return offset
}
