package modeling

// partition splits a sorted target-ID list into batchCount contiguous ranges.
// Sizes differ by at most one: the first len%batchCount batches carry one
// extra target.  Contiguous ranges over the sorted list mean every slot
// derives identical boundaries from the same worklist, with no coordination.
func partition(ids []string, batchCount int) [][]string {
	if batchCount < 1 {
		batchCount = 1
	}
	batches := make([][]string, batchCount)
	base := len(ids) / batchCount
	extra := len(ids) % batchCount

	offset := 0
	for i := 0; i < batchCount; i++ {
		size := base
		if i < extra {
			size++
		}
		batches[i] = ids[offset : offset+size]
		offset += size
	}
	return batches
}
