package words

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

var ErrMarkup = errors.New("word contains markup")
var ErrEmpty = errors.New("empty word")

// Sink receives accepted words. Implementations must not block.
type Sink interface {
	StoreWord(word, theme string)
}

type Pipeline struct {
	sink Sink
	log  *zap.Logger
}

func NewPipeline(sink Sink, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{sink: sink, log: log.With(zap.String("component", "words"))}
}

// Session dedups words for one peer connection. Not safe for concurrent use;
// the lobby loop owns every session.
type Session struct {
	p    *Pipeline
	seen map[string]string // word -> last forwarded theme
}

func (p *Pipeline) NewSession() *Session {
	return &Session{p: p, seen: make(map[string]string)}
}

// Ingest validates a submission, splits it on whitespace and forwards every
// token not already forwarded with the same theme. It returns the forwarded tokens.
func (s *Session) Ingest(word, theme string) ([]string, error) {
	if strings.ContainsAny(word, "<>") {
		s.p.log.Warn("dropping word with markup", zap.String("word", word))
		return nil, ErrMarkup
	}

	tokens := strings.Fields(word)
	if len(tokens) == 0 {
		return nil, ErrEmpty
	}

	var accepted []string
	for _, tok := range tokens {
		if last, ok := s.seen[tok]; ok && last == theme {
			continue
		}
		s.seen[tok] = theme
		s.p.sink.StoreWord(tok, theme)
		accepted = append(accepted, tok)
	}
	if len(accepted) > 0 {
		s.p.log.Debug("words accepted", zap.Strings("words", accepted), zap.String("theme", theme))
	}
	return accepted, nil
}

// Len is the number of distinct words this session has forwarded.
func (s *Session) Len() int { return len(s.seen) }
