package segment

import (
	"strings"
	"unicode"
)

// Sentence is one unit of speech cut from the incoming text stream. Indices
// are contiguous and strictly increasing within a turn. Preceding carries the
// previous sentence as a prosody hint; Following is filled in later by the
// dispatch policy when the successor is known.
type Sentence struct {
	Index     uint64
	Text      string
	Preceding string
	Following string
}

// abbreviations that end with a period mid-sentence and must not be treated
// as sentence boundaries ("Dr. Smith", "e.g. this").
var abbreviations = map[string]struct{}{
	"mr":   {},
	"mrs":  {},
	"ms":   {},
	"dr":   {},
	"prof": {},
	"st":   {},
	"sr":   {},
	"jr":   {},
	"vs":   {},
	"etc":  {},
	"inc":  {},
	"ltd":  {},
	"fig":  {},
	"g":    {}, // trailing token of "e.g."
	"e":    {}, // trailing token of "i.e."
}

// Segmenter incrementally scans appended text and emits complete sentences
// the instant a boundary is found. Single writer; the emit callback runs on
// the caller's goroutine.
type Segmenter struct {
	emit     func(Sentence)
	buf      string
	cursor   int
	next     uint64
	previous string
	finished bool
}

func New(emit func(Sentence)) *Segmenter {
	return &Segmenter{emit: emit}
}

// Push appends a text fragment and emits any sentences it completes.
func (s *Segmenter) Push(fragment string) {
	if s.finished || fragment == "" {
		return
	}
	s.buf += fragment
	s.scan()
}

// Flush emits the trailing remainder, if any, as a final sentence without
// terminal punctuation. The segmenter accepts no more text afterwards.
func (s *Segmenter) Flush() {
	if s.finished {
		return
	}
	s.finished = true
	if rest := strings.TrimSpace(s.buf); rest != "" {
		s.emitSentence(rest)
	}
	s.buf = ""
	s.cursor = 0
}

// Count reports how many sentences have been emitted so far.
func (s *Segmenter) Count() uint64 {
	return s.next
}

func (s *Segmenter) scan() {
	for i := s.cursor; i < len(s.buf); i++ {
		if !isTerminal(s.buf[i]) {
			continue
		}
		// The boundary needs trailing whitespace; a terminal character at
		// the very end of the buffer stays undecided until more text
		// arrives or the stream flushes.
		if i+1 >= len(s.buf) {
			s.cursor = i
			return
		}
		if !unicode.IsSpace(rune(s.buf[i+1])) {
			continue
		}
		if !s.acceptBoundary(i) {
			continue
		}
		sentence := strings.TrimSpace(s.buf[:i+1])
		s.buf = s.buf[i+1:]
		s.cursor = 0
		if sentence != "" {
			s.emitSentence(sentence)
		}
		s.scan()
		return
	}
	s.cursor = len(s.buf)
}

// acceptBoundary rejects candidates where the word before the punctuation is
// a known abbreviation or a bare number, so "Dr. Smith" and "3. 14" survive
// as one sentence.
func (s *Segmenter) acceptBoundary(punct int) bool {
	if s.buf[punct] != '.' {
		return true
	}
	end := punct
	start := end
	for start > 0 && isWordByte(s.buf[start-1]) {
		start--
	}
	word := strings.ToLower(s.buf[start:end])
	if word == "" {
		return true
	}
	if _, ok := abbreviations[word]; ok {
		return false
	}
	// "no" ends sentences all the time; it is only the numero abbreviation
	// when a number follows ("No. 5").
	if word == "no" && digitFollows(s.buf[punct+1:]) {
		return false
	}
	if isDigits(word) {
		return false
	}
	return true
}

func digitFollows(rest string) bool {
	for i := 0; i < len(rest); i++ {
		if unicode.IsSpace(rune(rest[i])) {
			continue
		}
		return rest[i] >= '0' && rest[i] <= '9'
	}
	return false
}

func (s *Segmenter) emitSentence(text string) {
	sentence := Sentence{
		Index:     s.next,
		Text:      text,
		Preceding: s.previous,
	}
	s.next++
	s.previous = text
	s.emit(sentence)
}

func isTerminal(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
