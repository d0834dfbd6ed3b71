// Package errcode carries the frozen ErrorCode enumeration returned to
// client tools across the control surface. The values are pinned for ABI
// compatibility and must never be renumbered.
package errcode

// Code is a negative error code returned by control-surface operations.
// Zero means success.
type Code int32

const (
	OK Code = 0

	ErrLogLevelInvalid          Code = -1
	ErrLogTypeInvalid           Code = -2
	ErrQueryLevelInvalid        Code = -3
	ErrQueryTagInvalid          Code = -4
	ErrQueryPidInvalid          Code = -5
	ErrQueryTypeInvalid         Code = -6
	ErrBuffSizeInvalid          Code = -7
	ErrBuffSizeExp              Code = -8
	ErrLogPersistFileSizeInvalid Code = -9
	ErrLogPersistFileNameInvalid Code = -10
	ErrLogPersistFilePathExp     Code = -11
	ErrLogPersistCompressInitFail Code = -12
	ErrLogPersistFileOpenFail    Code = -13
	ErrLogPersistMmapFail        Code = -14
	ErrLogPersistJobIDFail       Code = -15
	ErrDomainInvalid            Code = -16
	ErrMemAllocFail              Code = -17
	ErrMsgLenInvalid            Code = -18
	ErrPropertyValueInvalid     Code = -19
	ErrLogContentNull           Code = -20
	ErrCommandNotFound          Code = -21
	ErrFormatInvalid            Code = -22
)

var names = map[Code]string{
	OK:                           "OK",
	ErrLogLevelInvalid:           "invalid log level",
	ErrLogTypeInvalid:            "invalid log type",
	ErrQueryLevelInvalid:         "invalid query level",
	ErrQueryTagInvalid:           "invalid query tag",
	ErrQueryPidInvalid:           "invalid query pid",
	ErrQueryTypeInvalid:          "invalid query type",
	ErrBuffSizeInvalid:           "invalid buffer size",
	ErrBuffSizeExp:               "buffer size exception",
	ErrLogPersistFileSizeInvalid: "invalid persist file size",
	ErrLogPersistFileNameInvalid: "invalid persist file name",
	ErrLogPersistFilePathExp:     "persist file path exception",
	ErrLogPersistCompressInitFail: "compressor init failed",
	ErrLogPersistFileOpenFail:    "persist file open failed",
	ErrLogPersistMmapFail:        "mmap failed",
	ErrLogPersistJobIDFail:       "persist job id collision",
	ErrDomainInvalid:             "invalid domain",
	ErrMemAllocFail:              "allocation failed",
	ErrMsgLenInvalid:             "invalid message length",
	ErrPropertyValueInvalid:      "invalid property value",
	ErrLogContentNull:            "null log content",
	ErrCommandNotFound:           "command not found",
	ErrFormatInvalid:             "invalid format",
}

// String renders the human-readable description of a code, for logging and
// CLI output; client tools keep matching on the numeric value.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "unknown error code"
}

// Error lets Code satisfy the error interface so it can be returned
// directly from control-surface operations.
func (c Code) Error() string {
	return c.String()
}
