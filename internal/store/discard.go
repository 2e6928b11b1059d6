package store

// DiscardAfter deletes every persisted accesses row whose transition is >=
// transitionCount, using the exact statement shape from the specification's
// external interface. The sub-select roots the deletion at the first chunk
// (by lowest rowid) of the first slice whose transition_last >= T; because
// chunk rowids are not strictly monotonic in address or transition, this can
// over- or under-delete in edge cases where that is not actually the chunk
// containing the first affected access. This is a documented property of the
// original statement, not a defect to paper over.
func (s *Store) DiscardAfter(transitionCount uint64) error {
	const stmt = `
delete from accesses
 where chunk_id >= (select min(rowid) from chunks
                     where slice_id = (select rowid from slices
                                       where transition_last >= ?
                                       limit 1)
                     limit 1)
   and transition >= ?;`

	if _, err := s.db.Exec(stmt, int64(transitionCount), int64(transitionCount)); err != nil {
		return &Error{Context: "discard after transition", Err: err}
	}
	return nil
}
