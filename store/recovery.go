package store

// recoverySlabMax bounds the backwards-scan buffer: a multiple of
// MetaSize, capped near 1 MiB (spec §4.3).
const recoverySlabMax = 1 << 20

func slabSize() int64 {
	n := int64(recoverySlabMax / MetaSize * MetaSize)
	if n < MetaSize {
		n = MetaSize
	}
	return n
}

// recover scans backwards from the highest existing file index looking
// for the last valid meta record, truncating any torn trailer once it's
// found and unlinking files that contain no meta record at all (spec
// §4.3). It returns an empty state (no meta) if nothing is found.
func (s *Store) recover() error {
	span := s.tracer.StartRecovery(s.prefix)
	defer span.Finish()

	index := s.highestIndex
	for index >= 1 {
		found, meta, locPos, err := s.recoverFile(index)
		if err != nil {
			span.SetError(err)
			return err
		}
		if found {
			s.hasMeta = true
			s.state = meta
			s.lastMetaIndex = index
			s.lastMetaPos = locPos
			s.highestIndex = index
			return nil
		}
		// No meta in this file: it's entirely torn, discard it.
		path := s.filePath(index)
		_ = s.fsys.Unlink(path)
		index--
	}
	s.hasMeta = false
	s.highestIndex = 1
	return nil
}

// recoverFile scans file index backwards in META_SIZE-aligned steps,
// using a slab buffer, looking for the last valid meta record. On a
// match it truncates the file immediately after that record and
// reports the meta record's own starting position within the file.
func (s *Store) recoverFile(index uint16) (bool, Meta, uint32, error) {
	path := s.filePath(index)
	f, err := s.fsys.Open(path, false)
	if err != nil {
		return false, Meta{}, 0, nil
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return false, Meta{}, 0, err
	}
	fileSize := size
	// Align down to a multiple of MetaSize.
	size -= size % MetaSize

	slab := slabSize()
	buf := make([]byte, slab)

	for end := size; end > 0; {
		start := end - slab
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && n == 0 {
			return false, Meta{}, 0, err
		}
		chunk := buf[:n]

		for off := int64(len(chunk)) - MetaSize; off >= 0; off -= MetaSize {
			candidate := chunk[off : off+MetaSize]
			meta, err := decodeMeta(candidate, s.hash)
			if err != nil {
				continue
			}
			locPos := start + off
			truncateAt := locPos + MetaSize
			if err := f.Truncate(truncateAt); err != nil {
				return false, Meta{}, 0, err
			}
			if s.metrics != nil && truncateAt < fileSize {
				s.metrics.RecoveryTruncated(fileSize - truncateAt)
			}
			return true, meta, uint32(locPos), nil
		}
		end = start
	}
	return false, Meta{}, 0, nil
}
