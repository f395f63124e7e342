package domain

import (
	"fmt"
	"strings"
	"time"
)

// AccessRecord is one line of the access log.
type AccessRecord struct {
	Time      time.Time
	HWID      HWID
	Addr      string
	UserAgent string
}

const accessTimeLayout = "2006-01-02 15:04:05"

// Line renders the record as a single newline-terminated log line.
func (a AccessRecord) Line() string {
	return fmt.Sprintf("[%s] HWID: %s | IP: %s | User-Agent: %s\n",
		a.Time.Format(accessTimeLayout),
		a.HWID,
		orUnknown(a.Addr),
		orUnknown(a.UserAgent),
	)
}

func orUnknown(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
