package cache

import "sort"

// less returns the ordering in which entries are evicted, first victim first.
func (e Eviction) less(entries []*Entry) func(i, j int) bool {
	switch e {
	case EvictLFU:
		return func(i, j int) bool { return entries[i].AccessCount < entries[j].AccessCount }
	case EvictFIFO:
		return func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) }
	default:
		return func(i, j int) bool { return entries[i].LastAccessedAt.Before(entries[j].LastAccessedAt) }
	}
}

func (s *Store) fitsLocked(requiredBytes int64, requiredSlots int) bool {
	return s.size+requiredBytes <= s.config.MaxTotalSize &&
		len(s.entries)+requiredSlots <= s.config.MaxEntries
}

// ensureSpaceLocked evicts entries until requiredBytes more bytes and
// requiredSlots more entries fit within the budgets. Entries that tie on the
// eviction key are evicted in map iteration order. Returns the number evicted.
func (s *Store) ensureSpaceLocked(requiredBytes int64, requiredSlots int) int {
	if s.fitsLocked(requiredBytes, requiredSlots) {
		return 0
	}

	victims := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		victims = append(victims, e)
	}
	sort.SliceStable(victims, s.config.Eviction.less(victims))

	evicted := 0
	for _, e := range victims {
		if s.fitsLocked(requiredBytes, requiredSlots) {
			break
		}
		s.removeLocked(e.Key, removeEvicted)
		evicted++
	}
	if evicted > 0 {
		s.log.Debug().
			Int("evicted", evicted).
			Str("eviction", string(s.config.Eviction)).
			Int64("size", s.size).
			Int("entries", len(s.entries)).
			Msg("Evicted entries to stay within budget")
	}
	return evicted
}
