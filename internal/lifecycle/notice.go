package lifecycle

import (
	"errors"
	"strings"
)

// Level grades a Notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

var (
	// ErrNoSession is returned by operations that need a started session.
	ErrNoSession = errors.New("no active session")
	// ErrChatNotFound is returned when a chat id is not in the user's history.
	// The operation had no effect.
	ErrChatNotFound = errors.New("chat not found")
)

// Notice reports a recoverable condition met while an operation still
// completed: a quarantined history file, a save that failed. The in-memory
// state reflects the operation either way.
type Notice struct {
	Level   Level
	Message string
	Err     error
}

func (n *Notice) Error() string {
	if n.Err == nil {
		return n.Message
	}
	return n.Message + ": " + n.Err.Error()
}

func (n *Notice) Unwrap() error { return n.Err }

// IsWarning reports whether err is a Notice, i.e. the operation completed
// and err only needs to be shown to the user.
func IsWarning(err error) bool {
	var n *Notice
	return errors.As(err, &n)
}

// notices collects what happened during one operation.
type notices []*Notice

func (ns *notices) add(level Level, msg string, err error) {
	*ns = append(*ns, &Notice{Level: level, Message: msg, Err: err})
}

// take merges the collected notices into one, at the highest level seen,
// and resets the collection. It returns nil when nothing was collected.
func (ns *notices) take() error {
	list := *ns
	*ns = nil
	switch len(list) {
	case 0:
		return nil
	case 1:
		return list[0]
	}
	merged := &Notice{Level: LevelInfo}
	msgs := make([]string, 0, len(list))
	errs := make([]error, 0, len(list))
	for _, n := range list {
		if n.Level == LevelWarning {
			merged.Level = LevelWarning
		}
		msgs = append(msgs, n.Message)
		if n.Err != nil {
			errs = append(errs, n.Err)
		}
	}
	merged.Message = strings.Join(msgs, "; ")
	merged.Err = errors.Join(errs...)
	return merged
}
