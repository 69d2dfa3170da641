package trade

import "strings"

// Sniffed is a trade term found inside free text.
type Sniffed struct {
	// Trade is the vocabulary fragment to resolve as a trade term.
	Trade string
	// Token is the word of the input the fragment matched.
	Token string
	// Remaining is the input with Token removed.
	Remaining string
}

// Sniffer detects an implicit trade inside a free-text query.
type Sniffer interface {
	Sniff(text string) (Sniffed, bool)
}

// DefaultVocabulary holds trade-name stems seen in search text.
var DefaultVocabulary = []string{
	"electric",
	"plumb",
	"carpent",
	"joiner",
	"roof",
	"plaster",
	"painter",
	"decorat",
	"tiler",
	"glazi",
	"locksmith",
	"gardener",
	"landscap",
	"bricklay",
	"builder",
	"cleaner",
	"handyman",
	"mechanic",
	"heating",
	"boiler",
}

// VocabularySniffer matches each token of the query against a fixed list of
// stems. A token matches when it starts with a stem.
type VocabularySniffer struct {
	vocabulary []string
}

// NewVocabularySniffer creates a sniffer over vocabulary, or over
// DefaultVocabulary when none is given.
func NewVocabularySniffer(vocabulary ...string) *VocabularySniffer {
	if len(vocabulary) == 0 {
		vocabulary = DefaultVocabulary
	}
	stems := make([]string, 0, len(vocabulary))
	for _, v := range vocabulary {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			stems = append(stems, v)
		}
	}
	return &VocabularySniffer{vocabulary: stems}
}

// Sniff returns the first token, in query order, that matches the vocabulary.
func (s *VocabularySniffer) Sniff(text string) (Sniffed, bool) {
	tokens := strings.Fields(strings.ToLower(text))
	for i, token := range tokens {
		for _, stem := range s.vocabulary {
			if !strings.HasPrefix(token, stem) {
				continue
			}
			rest := make([]string, 0, len(tokens)-1)
			rest = append(rest, tokens[:i]...)
			rest = append(rest, tokens[i+1:]...)
			return Sniffed{
				Trade:     stem,
				Token:     token,
				Remaining: strings.Join(rest, " "),
			}, true
		}
	}
	return Sniffed{}, false
}
