package logmodel

import "time"

// TimeStamp is a (seconds, nanoseconds) pair with total order and a
// subtraction that saturates at zero instead of going negative, mirroring
// LogTimeStamp in the original hilogd.
type TimeStamp struct {
	Sec  uint32
	Nsec uint32
}

// NewTimeStamp builds a TimeStamp from the wire header's tv_sec/tv_nsec.
func NewTimeStamp(sec, nsec uint32) TimeStamp {
	return TimeStamp{Sec: sec, Nsec: nsec}
}

// Now returns the current wall-clock time as a TimeStamp.
func Now() TimeStamp {
	now := time.Now()
	return TimeStamp{Sec: uint32(now.Unix()), Nsec: uint32(now.Nanosecond())}
}

// Compare returns -1, 0, or 1 as t is before, equal to, or after other.
func (t TimeStamp) Compare(other TimeStamp) int {
	switch {
	case t.Sec < other.Sec:
		return -1
	case t.Sec > other.Sec:
		return 1
	case t.Nsec < other.Nsec:
		return -1
	case t.Nsec > other.Nsec:
		return 1
	default:
		return 0
	}
}

func (t TimeStamp) Less(other TimeStamp) bool    { return t.Compare(other) < 0 }
func (t TimeStamp) Equal(other TimeStamp) bool   { return t.Compare(other) == 0 }
func (t TimeStamp) After(other TimeStamp) bool   { return t.Compare(other) > 0 }
func (t TimeStamp) Before(other TimeStamp) bool  { return t.Compare(other) < 0 }
func (t TimeStamp) AtOrAfter(other TimeStamp) bool { return t.Compare(other) >= 0 }

// Sub returns t-other as a duration, saturating at zero when t is before
// other rather than going negative.
func (t TimeStamp) Sub(other TimeStamp) time.Duration {
	if t.Before(other) {
		return 0
	}
	secs := int64(t.Sec) - int64(other.Sec)
	nsecs := int64(t.Nsec) - int64(other.Nsec)
	total := secs*int64(time.Second) + nsecs
	if total < 0 {
		return 0
	}
	return time.Duration(total)
}
