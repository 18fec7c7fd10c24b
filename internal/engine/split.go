package engine

// SplitIntoChunks partitions a full match record into chunk payloads of
// chunkDurationMs each. Chunk count follows the last ball sample, samples past
// it go into the final chunk.
func SplitIntoChunks(full *ChunkPayload, chunkDurationMs int64) []*ChunkPayload {
	if full == nil || chunkDurationMs <= 0 {
		return []*ChunkPayload{clonePayload(full)}
	}

	var maxTs int64
	if n := len(full.Ball); n > 0 {
		maxTs = full.Ball[n-1].Timestamp
	}
	count := int(maxTs/chunkDurationMs) + 1

	chunks := make([]*ChunkPayload, count)
	for i := range chunks {
		chunks[i] = &ChunkPayload{Players: make(map[uint32][]Sample)}
	}
	idx := func(ts int64) int {
		if ts < 0 {
			return 0
		}
		return min(int(ts/chunkDurationMs), count-1)
	}

	for _, s := range full.Ball {
		c := chunks[idx(s.Timestamp)]
		c.Ball = append(c.Ball, s)
	}
	for _, pid := range sortedKeys(full.Players) {
		for _, s := range full.Players[pid] {
			c := chunks[idx(s.Timestamp)]
			c.Players[pid] = append(c.Players[pid], s)
		}
	}
	return chunks
}

func clonePayload(p *ChunkPayload) *ChunkPayload {
	out := &ChunkPayload{Players: make(map[uint32][]Sample)}
	if p == nil {
		return out
	}
	out.Ball = append(out.Ball, p.Ball...)
	for pid, samples := range p.Players {
		out.Players[pid] = append([]Sample(nil), samples...)
	}
	return out
}
