package main

// prefixKey is Ctrl-]. The byte following it selects a deck action; pressing
// it twice sends one literal prefix byte.
const prefixKey = 0x1d

type action int

const (
	actionNone action = iota
	actionNewTab
	actionNextTab
	actionPrevTab
	actionCloseTab
	actionReconnect
	actionPaste
	actionDetach
)

var chordActions = map[byte]action{
	'c': actionNewTab,
	'n': actionNextTab,
	'p': actionPrevTab,
	'x': actionCloseTab,
	'r': actionReconnect,
	'v': actionPaste,
	'd': actionDetach,
	'q': actionDetach,
}

// keyStep is either raw input to forward or an action to run.
type keyStep struct {
	input  []byte
	action action
}

// chordReader splits keyboard input into forwarded bytes and prefix chords.
// The armed state carries across reads.
type chordReader struct {
	armed bool
}

func (r *chordReader) Feed(p []byte) []keyStep {
	var steps []keyStep
	start := 0
	flush := func(end int) {
		if end > start {
			chunk := make([]byte, end-start)
			copy(chunk, p[start:end])
			steps = append(steps, keyStep{input: chunk})
		}
	}
	for i, b := range p {
		if r.armed {
			r.armed = false
			start = i + 1
			if b == prefixKey {
				steps = append(steps, keyStep{input: []byte{prefixKey}})
				continue
			}
			if act, ok := chordActions[b]; ok {
				steps = append(steps, keyStep{action: act})
			}
			continue
		}
		if b == prefixKey {
			flush(i)
			r.armed = true
			start = i + 1
		}
	}
	if !r.armed {
		flush(len(p))
	}
	return steps
}
