package trace

import (
	"fmt"
	"strings"
)

// Level controls how fine-grained the recorded scopes are.
type Level uint8

const (
	LevelOff   Level = iota
	LevelError       // failing spans only
	LevelTx          // commands and transactions
	LevelFile        // plus per-file work
	LevelDebug       // plus record edits
)

var levelNames = [...]string{"off", "error", "tx", "file", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// ParseLevel accepts the names printed by String; empty means off.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelOff, nil
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("trace level %q: want one of %s", s, strings.Join(levelNames[:], "|"))
}

// finest is the deepest scope each level records.
var finest = [...]Scope{LevelTx: ScopeTx, LevelFile: ScopeFile, LevelDebug: ScopeRecord}

// ShouldEmit reports whether begin and end events of scope are recorded.
func (l Level) ShouldEmit(scope Scope) bool {
	return int(l) < len(finest) && scope <= finest[l]
}

// accepts reports whether a tracer at level l records ev. LevelError keeps
// only span ends that carry a failure detail.
func (l Level) accepts(ev *Event) bool {
	if l == LevelError {
		return ev.Kind == KindSpanEnd && ev.Detail != ""
	}
	return l.ShouldEmit(ev.Scope)
}
