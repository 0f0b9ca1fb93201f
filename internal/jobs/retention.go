package jobs

import "sort"

// housekeep bounds the number of retained job directories. When the total
// exceeds keepMax it deletes terminal jobs oldest-created-first until the
// count is back at the cap or no terminal jobs remain. Pending and running
// jobs are never evicted regardless of age. Removal is best-effort: this is
// housekeeping, not a correctness path.
func (s *Store) housekeep() {
	ids, err := s.fs.ListDirs()
	if err != nil {
		s.logger.Warn().Err(err).Msg("retention scan failed")
		return
	}

	var metas []*Record
	for _, id := range ids {
		rec, err := s.readMeta(id)
		if err != nil {
			continue
		}
		metas = append(metas, rec)
	}
	total := len(metas)
	if total <= s.keepMax {
		return
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.Before(metas[j].CreatedAt)
	})

	for _, rec := range metas {
		if total <= s.keepMax {
			break
		}
		if !rec.Status.Terminal() {
			continue
		}
		if err := s.fs.RemoveDir(rec.ID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", rec.ID).Msg("retention removal failed")
		}
		total--
	}
}
