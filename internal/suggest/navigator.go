package suggest

import (
	"fmt"
	"strings"
)

// Key is a navigation key forwarded by the view.
type Key string

const (
	KeyDown   Key = "ArrowDown"
	KeyUp     Key = "ArrowUp"
	KeyEnter  Key = "Enter"
	KeyEscape Key = "Escape"
)

// ParseKey accepts DOM key names case-insensitively.
func ParseKey(value string) (Key, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "arrowdown", "down":
		return KeyDown, nil
	case "arrowup", "up":
		return KeyUp, nil
	case "enter":
		return KeyEnter, nil
	case "escape", "esc":
		return KeyEscape, nil
	default:
		return "", fmt.Errorf("unsupported key %q", value)
	}
}

// NavState is the slice of suggestion state the navigator works on.
type NavState struct {
	Open       bool
	Highlight  int
	Length     int
	QueryEmpty bool
}

// EffectKind describes what a key press caused.
type EffectKind int

const (
	// EffectNone means the key was ignored.
	EffectNone EffectKind = iota
	// EffectMoved means the highlight changed; the view keeps Index visible.
	EffectMoved
	// EffectCommit selects the candidate at Index.
	EffectCommit
	// EffectClosed means the dropdown closed without a selection.
	EffectClosed
	// EffectFocusNext asks the view to move to the next field.
	EffectFocusNext
)

func (k EffectKind) String() string {
	switch k {
	case EffectMoved:
		return "moved"
	case EffectCommit:
		return "commit"
	case EffectClosed:
		return "closed"
	case EffectFocusNext:
		return "focus_next"
	default:
		return "none"
	}
}

// Effect is the result of one key press.
type Effect struct {
	Kind  EffectKind
	Index int
}

// Navigate applies key to st. hasNext reports whether a next-field target
// exists for the empty-query Enter shortcut. ArrowUp clamps at the first
// row instead of wrapping.
func Navigate(st NavState, key Key, hasNext bool) (NavState, Effect) {
	if st.Length <= 0 {
		st.Open = false
		st.Highlight = -1
	}
	if !st.Open {
		switch key {
		case KeyDown:
			if st.Length > 0 {
				st.Open = true
				st.Highlight = 0
				return st, Effect{Kind: EffectMoved, Index: 0}
			}
		case KeyEnter:
			if st.QueryEmpty && hasNext {
				return st, Effect{Kind: EffectFocusNext, Index: -1}
			}
		}
		return st, Effect{Kind: EffectNone, Index: st.Highlight}
	}

	switch key {
	case KeyDown:
		st.Highlight = min(st.Highlight+1, st.Length-1)
		return st, Effect{Kind: EffectMoved, Index: st.Highlight}
	case KeyUp:
		st.Highlight = max(st.Highlight-1, 0)
		return st, Effect{Kind: EffectMoved, Index: st.Highlight}
	case KeyEnter:
		switch {
		case st.Highlight >= 0 && st.Highlight < st.Length:
			idx := st.Highlight
			st.Open = false
			return st, Effect{Kind: EffectCommit, Index: idx}
		case st.Length == 1:
			st.Open = false
			return st, Effect{Kind: EffectCommit, Index: 0}
		case st.QueryEmpty && hasNext:
			st.Open = false
			return st, Effect{Kind: EffectFocusNext, Index: -1}
		}
		return st, Effect{Kind: EffectNone, Index: st.Highlight}
	case KeyEscape:
		st.Open = false
		return st, Effect{Kind: EffectClosed, Index: st.Highlight}
	}
	return st, Effect{Kind: EffectNone, Index: st.Highlight}
}
