package logger

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
)

// The journal is a second, optional sink that receives one line per engine
// state transition (order placed, filled, closed, cancelled).

var (
	journalMu  sync.Mutex
	journalLog *log.Logger
)

func SetJournalWriter(w io.Writer) {
	journalMu.Lock()
	defer journalMu.Unlock()
	if w == nil {
		journalLog = nil
		return
	}
	journalLog = log.New(w, "", log.LstdFlags)
}

// Journal writes kind followed by the fields in key order, and mirrors the
// line at debug level on the main logger.
func Journal(kind string, fields map[string]any) {
	line := formatJournal(kind, fields)
	Debugf("%s", line)
	journalMu.Lock()
	l := journalLog
	journalMu.Unlock()
	if l == nil {
		return
	}
	l.Print(line)
}

func formatJournal(kind string, fields map[string]any) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(strings.ToUpper(strings.TrimSpace(kind)))
	b.WriteString("]")
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		switch v := fields[k].(type) {
		case float64:
			b.WriteString(fmt.Sprintf("%.6f", v))
		default:
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String()
}
