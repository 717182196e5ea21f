package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// GenID generates a unique entity ID using the current UTC nanosecond
// timestamp and an atomic sequence number. The format is "ent-<ts>-<seq>".
func GenID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("ent-%d-%d", n, s)
}

// GenSessionID generates a unique session ID. The format is
// "session-<ts>-<seq>".
func GenSessionID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("session-%d-%d", n, s)
}

// GenSubID generates a unique subscription ID. The format is
// "sub-<ts>-<seq>".
func GenSubID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("sub-%d-%d", n, s)
}

// SplitPath splits a path string into its non-empty segments, separated
// by '/'. For example, "/lens/messages/" becomes []string{"lens", "messages"}.
func SplitPath(p string) []string {
	out := make([]string, 0)
	cur := ""
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(c)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
