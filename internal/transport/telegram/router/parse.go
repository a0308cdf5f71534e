package router

import (
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var reqSeq atomic.Uint64

// newReqID returns a short correlation id for one handled update: base36
// timestamp, process-local sequence, two random chars.
func newReqID() string {
	ts := strconv.FormatInt(time.Now().UnixNano(), 36)
	seq := strconv.FormatUint(reqSeq.Add(1), 36)
	tail := strconv.FormatInt(rand.Int63n(36*36), 36)
	if len(tail) < 2 {
		tail = "0" + tail
	}
	return ts + "-" + seq + tail
}

// tokenizeCommandLine splits a command line into tokens. Double or single
// quotes group words and backslash escapes the next byte:
//
//	/remind add "pay rent" --at="2026-08-24 09:30"
func tokenizeCommandLine(s string) []string {
	var (
		toks  []string
		cur   strings.Builder
		quote byte // active quote char, 0 outside quotes
	)
	emit := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			}
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			emit()
		default:
			cur.WriteByte(c)
		}
	}
	emit()
	return toks
}

// parseFlags separates positional args from flags. Accepted forms:
//
//	--key=value, --key value, --bool
//	-k=value, -k value, and clustered -abc for the bools a, b, c
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}

	takesValue := func(i int) bool {
		return i+1 < len(args) && !strings.HasPrefix(args[i+1], "-")
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		var key string
		long := false
		switch {
		case strings.HasPrefix(a, "--") && len(a) > 2:
			key = a[2:]
			long = true
		case strings.HasPrefix(a, "-") && len(a) > 1 && a != "-":
			key = a[1:]
		default:
			pos = append(pos, a)
			continue
		}

		if name, val, ok := strings.Cut(key, "="); ok {
			flags[name] = val
			continue
		}
		if long || len(key) == 1 {
			if takesValue(i) {
				flags[key] = args[i+1]
				i++
			} else {
				bools[key] = true
			}
			continue
		}
		for _, c := range key {
			bools[string(c)] = true
		}
	}
	return pos, flags, bools
}
