// Package wire decodes the ingress packet format. The socket transport
// that delivers these packets is out of scope; this package only turns a
// length-prefixed byte frame into a logmodel.LogRecord, or rejects it with
// the matching errcode.Code.
package wire

import (
	"encoding/binary"

	"github.com/hiviewdfx/hilogd/internal/errcode"
	"github.com/hiviewdfx/hilogd/internal/logmodel"
)

// HeaderLen is sizeof(HilogMsg) on the wire: len(u16) + packed(u16) +
// tv_sec + tv_nsec + pid + tid + domain, all little-endian.
const HeaderLen = 2 + 2 + 4 + 4 + 4 + 4 + 4

// Decode parses one ingress frame (header + tag + content) into a
// LogRecord. It returns errcode.ErrMsgLenInvalid for a frame too short for
// its own header, errcode.ErrFormatInvalid for an inconsistent tag_len, and
// errcode.ErrLogContentNull when the computed content length is out of
// (0, MaxLogLen]. Insert rejects the same conditions by returning 0;
// callers that want the reason for a drop get it from the returned code
// here instead.
func Decode(frame []byte) (logmodel.LogRecord, errcode.Code) {
	var rec logmodel.LogRecord

	if len(frame) < HeaderLen {
		return rec, errcode.ErrMsgLenInvalid
	}

	totalLen := binary.LittleEndian.Uint16(frame[0:2])
	packed := binary.LittleEndian.Uint16(frame[2:4])
	version := packed & 0x7
	logType := (packed >> 3) & 0xf
	level := (packed >> 7) & 0x7
	tagLen := int((packed >> 10) & 0x3f)
	_ = version

	tvSec := binary.LittleEndian.Uint32(frame[4:8])
	tvNsec := binary.LittleEndian.Uint32(frame[8:12])
	pid := binary.LittleEndian.Uint32(frame[12:16])
	tid := binary.LittleEndian.Uint32(frame[16:20])
	domain := binary.LittleEndian.Uint32(frame[20:24])

	if int(totalLen) != len(frame) {
		return rec, errcode.ErrMsgLenInvalid
	}
	if tagLen < 1 || tagLen > logmodel.MaxTagLen {
		return rec, errcode.ErrFormatInvalid
	}

	contentLen := int(totalLen) - HeaderLen - tagLen
	if contentLen <= 0 || contentLen > logmodel.MaxLogLen {
		return rec, errcode.ErrLogContentNull
	}
	if logType >= logmodel.LogTypeMax {
		return rec, errcode.ErrLogTypeInvalid
	}
	if level > 7 {
		return rec, errcode.ErrLogLevelInvalid
	}

	tagStart := HeaderLen
	tagEnd := tagStart + tagLen
	contentStart := tagEnd
	contentEnd := contentStart + contentLen
	if contentEnd > len(frame) {
		return rec, errcode.ErrMsgLenInvalid
	}

	rec = logmodel.LogRecord{
		Level:     logmodel.Level(level),
		Type:      logmodel.LogType(logType),
		Timestamp: logmodel.NewTimeStamp(tvSec, tvNsec),
		Pid:       pid,
		Tid:       tid,
		Domain:    domain,
		Tag:       trimNUL(frame[tagStart:tagEnd]),
		Content:   trimNUL(frame[contentStart:contentEnd]),
	}
	return rec, errcode.OK
}

// trimNUL drops a single trailing NUL byte, which the wire format requires
// tags and content to carry.
func trimNUL(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

// Encode renders rec back into an ingress frame, used by tests and by
// anything feeding synthetic traffic into the daemon.
func Encode(rec logmodel.LogRecord) []byte {
	tag := append([]byte(rec.Tag), 0)
	content := append([]byte(rec.Content), 0)
	total := HeaderLen + len(tag) + len(content)

	frame := make([]byte, total)
	binary.LittleEndian.PutUint16(frame[0:2], uint16(total))

	packed := uint16(0) // version
	packed |= (uint16(rec.Type) & 0xf) << 3
	packed |= (uint16(rec.Level) & 0x7) << 7
	packed |= (uint16(len(tag)) & 0x3f) << 10
	binary.LittleEndian.PutUint16(frame[2:4], packed)

	binary.LittleEndian.PutUint32(frame[4:8], rec.Timestamp.Sec)
	binary.LittleEndian.PutUint32(frame[8:12], rec.Timestamp.Nsec)
	binary.LittleEndian.PutUint32(frame[12:16], rec.Pid)
	binary.LittleEndian.PutUint32(frame[16:20], rec.Tid)
	binary.LittleEndian.PutUint32(frame[20:24], rec.Domain)

	copy(frame[HeaderLen:], tag)
	copy(frame[HeaderLen+len(tag):], content)
	return frame
}
