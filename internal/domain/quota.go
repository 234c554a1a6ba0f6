package domain

import "time"

// UnknownLimit marks a QuotaState that was never fetched.
const UnknownLimit = -1

type HourLimit struct {
	Start time.Time
	Limit int
}

type QuotaState struct {
	Day   int
	Hours []HourLimit
}

func NewQuotaState() QuotaState {
	return QuotaState{Day: UnknownLimit}
}

// Known сообщает, есть ли смысл отвечать из кеша без нового запроса.
func (q QuotaState) Known(mode Mode) bool {
	if mode == ModeRu {
		return len(q.Hours) > 0
	}
	return q.Day != UnknownLimit
}

// Limit is the next usable quota window: an hour in ru mode, otherwise the
// current day (Start truncated to local midnight).
type Limit struct {
	Start  time.Time
	Limit  int
	Hourly bool
}
