package persist

import (
	"fmt"
	"strings"
	"time"

	"github.com/hiviewdfx/hilogd/internal/logmodel"
)

// renderLines turns one LogRecord into the one-or-more display lines that
// get staged, matching GenPersistLogHeader's behavior of splitting
// multi-line content into separate persisted lines that each carry the
// record's header.
func renderLines(rec *logmodel.LogRecord) []string {
	ts := time.Unix(int64(rec.Timestamp.Sec), int64(rec.Timestamp.Nsec))
	header := fmt.Sprintf("%s %6d %6d %c/%-8s: ",
		ts.Format("01-02 15:04:05.000"), rec.Pid, rec.Tid, levelChar(rec.Level), rec.Tag)

	segments := strings.Split(rec.Content, "\n")
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		lines = append(lines, header+seg)
	}
	if len(lines) == 0 {
		lines = append(lines, strings.TrimRight(header, " "))
	}
	return lines
}

func levelChar(l logmodel.Level) byte {
	switch l {
	case logmodel.LevelDebug:
		return 'D'
	case logmodel.LevelInfo:
		return 'I'
	case logmodel.LevelWarn:
		return 'W'
	case logmodel.LevelError:
		return 'E'
	case logmodel.LevelFatal:
		return 'F'
	default:
		return 'V'
	}
}
