package trace

import "time"

// SyntheticSource produces a logically infinite trace by accumulating a
// model's sampled gaps into schedule offsets. A count or duration bound makes
// it finite. Restart requires building a new source over a reseeded model.
type SyntheticSource struct {
	model       Model
	nextSeq     uint64
	elapsed     time.Duration
	maxBursts   int
	maxDuration time.Duration
}

// NewSynthetic wraps model. maxBursts and maxDuration bound the sequence;
// zero means unbounded.
func NewSynthetic(model Model, maxBursts int, maxDuration time.Duration) *SyntheticSource {
	return &SyntheticSource{
		model:       model,
		maxBursts:   maxBursts,
		maxDuration: maxDuration,
	}
}

// Next samples the model once. The first burst fires at offset zero; the gap
// sampled alongside burst N schedules burst N+1.
func (s *SyntheticSource) Next() (BurstDescriptor, error) {
	if s.maxBursts > 0 && s.nextSeq >= uint64(s.maxBursts) {
		return BurstDescriptor{}, ErrTraceExhausted
	}
	if s.maxDuration > 0 && s.elapsed > s.maxDuration {
		return BurstDescriptor{}, ErrTraceExhausted
	}

	interval, size := s.model.NextBurst()
	desc := BurstDescriptor{
		Seq:         s.nextSeq,
		ScheduledAt: s.elapsed,
		SizeBytes:   size,
	}
	s.elapsed += interval
	s.nextSeq++
	return desc, nil
}
