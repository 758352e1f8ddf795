package leaderboard

import "guildbot/core"

// Entry is one ranked row: a member and their score for the ranked column.
type Entry struct {
	User  core.UserID
	Score int64
}

// Board abstracts ranking operations over a single score column.
type Board interface {
	Update(user core.UserID, score int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
}

// Ranked maintains one Board per sortable column so a store can answer
// top-N queries for xp, message counts, voice time and counting rounds
// without scanning every record.
type Ranked struct {
	boards map[core.SortColumn]Board
}

// NewRanked builds a skip-list board for every sortable column.
func NewRanked() *Ranked {
	r := &Ranked{boards: map[core.SortColumn]Board{}}
	for _, col := range core.SortColumns() {
		r.boards[col] = NewSkipList()
	}
	return r
}

// Record re-ranks a member across every column from their full record.
func (r *Ranked) Record(rec core.UserRecord) {
	r.boards[core.SortByXP].Update(rec.UserID, rec.XP)
	r.boards[core.SortByMessages].Update(rec.UserID, rec.TotalMessages)
	r.boards[core.SortByVoiceSeconds].Update(rec.UserID, rec.TotalVoiceSeconds)
	r.boards[core.SortByCountingRounds].Update(rec.UserID, rec.CountingSuccessRounds)
}

// Remove drops a member from every column's board.
func (r *Ranked) Remove(user core.UserID) {
	for _, b := range r.boards {
		b.Remove(user)
	}
}

// TopN returns the highest-scored members for one sortable column.
func (r *Ranked) TopN(column core.SortColumn, n int) ([]Entry, error) {
	b, ok := r.boards[column]
	if !ok {
		return nil, core.ErrBadSortColumn
	}
	return b.TopN(n), nil
}
