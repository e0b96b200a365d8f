package usecase

import "time"

// SetClock は送信時刻の取得元を差し替える。
func (s *SubmissionService) SetClock(now func() time.Time) {
	s.now = now
}
