package logbuffer

import (
	"github.com/hiviewdfx/hilogd/internal/logmodel"
	"github.com/hiviewdfx/hilogd/internal/reader"
)

// ConditionMatch reports whether rec satisfies cond. Types and Levels are
// masks checked with an unconditional bitwise AND: an all-zero mask matches
// no type/level, not every type/level — a caller that wants everything must
// set every bit. Pids/Domains/Tags inclusion lists are the only dimensions
// where empty means "no filter on this dimension" rather than "match
// nothing", matching log_buffer.cpp's ConditionMatch.
func ConditionMatch(cond reader.Condition, rec *logmodel.LogRecord) bool {
	typeBit := uint16(1) << uint16(rec.Type)
	if cond.Types&typeBit == 0 {
		return false
	}
	if cond.NoTypes&typeBit != 0 {
		return false
	}

	levelBit := uint8(1) << uint8(rec.Level)
	if cond.Levels&levelBit == 0 {
		return false
	}
	if cond.NoLevels&levelBit != 0 {
		return false
	}

	if len(cond.Pids) > 0 && !containsU32(cond.Pids, rec.Pid) {
		return false
	}
	if containsU32(cond.NoPids, rec.Pid) {
		return false
	}

	if len(cond.Domains) > 0 && !anyDomainMatches(cond.Domains, rec.Domain) {
		return false
	}
	if anyDomainMatches(cond.NoDomains, rec.Domain) {
		return false
	}

	if len(cond.Tags) > 0 && !containsStr(cond.Tags, rec.Tag) {
		return false
	}
	if containsStr(cond.NoTags, rec.Tag) {
		return false
	}

	return true
}

func containsU32(list []uint32, v uint32) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsStr(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func anyDomainMatches(patterns []uint32, domain uint32) bool {
	for _, p := range patterns {
		if logmodel.DomainMatches(p, domain) {
			return true
		}
	}
	return false
}
