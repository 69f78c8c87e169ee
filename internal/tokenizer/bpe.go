package tokenizer

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// pretokenizePattern splits text into words the way GPT-2 and RoBERTa
// do before merging. The lookahead is why this needs regexp2.
const pretokenizePattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

var byteEncoder, byteDecoder = byteTables()

// byteTables maps every byte to a printable rune so that byte-level
// vocabularies can be stored as text. Space becomes 'Ġ'.
func byteTables() ([256]rune, map[rune]byte) {
	var enc [256]rune
	dec := make(map[rune]byte, 256)
	n := 0
	for i := range 256 {
		r := rune(i)
		printable := (r >= '!' && r <= '~') || (r >= '¡' && r <= '¬') || (r >= '®' && r <= 'ÿ')
		if !printable {
			r = rune(256 + n)
			n++
		}
		enc[i] = r
		dec[r] = byte(i)
	}
	return enc, dec
}

type pair struct {
	first  string
	second string
}

// BPE is a byte-pair encoding tokenizer. In byte-level mode (RoBERTa,
// GPT-2) text is pre-tokenized with the GPT-2 pattern and every byte is
// representable, so no id is ever unknown.
type BPE struct {
	vocab     map[string]int32
	reverse   map[int32]string
	ranks     map[pair]int
	byteLevel bool
	split     *regexp2.Regexp

	bos, eos, pad, unk int32
	special            map[int32]bool
}

// NewBPE creates a tokenizer from a vocabulary and merge rules listed in
// priority order.
func NewBPE(vocab map[string]int32, merges [][2]string, byteLevel bool) *BPE {
	vocab = maps.Clone(vocab)
	if vocab == nil {
		vocab = make(map[string]int32)
	}
	reverse := make(map[int32]string, len(vocab))
	for token, id := range vocab {
		reverse[id] = token
	}
	ranks := make(map[pair]int, len(merges))
	for i, m := range merges {
		p := pair{m[0], m[1]}
		if _, dup := ranks[p]; !dup {
			ranks[p] = i
		}
	}

	b := &BPE{
		vocab:     vocab,
		reverse:   reverse,
		ranks:     ranks,
		byteLevel: byteLevel,
		bos:       -1,
		eos:       -1,
		pad:       -1,
		unk:       -1,
		special:   make(map[int32]bool),
	}
	if byteLevel {
		b.split = regexp2.MustCompile(pretokenizePattern, regexp2.None)
	}
	return b
}

// SetSpecialTokens configures the control token ids; -1 leaves one unset.
func (b *BPE) SetSpecialTokens(bos, eos, pad, unk int32) {
	b.bos, b.eos, b.pad, b.unk = bos, eos, pad, unk
	for _, id := range []int32{bos, eos, pad, unk} {
		if id >= 0 {
			b.special[id] = true
		}
	}
}

// addToken registers an added token that may be absent from the model
// vocabulary.
func (b *BPE) addToken(content string, id int32, special bool) {
	b.vocab[content] = id
	b.reverse[id] = content
	if special {
		b.special[id] = true
	}
}

// Encode converts text to ids.
func (b *BPE) Encode(text string) ([]int32, error) {
	words, err := b.words(text)
	if err != nil {
		return nil, err
	}

	ids := make([]int32, 0, len(text)/3)
	for _, word := range words {
		for _, piece := range b.merge(b.symbols(word)) {
			id, ok := b.vocab[piece]
			if !ok {
				if b.unk < 0 {
					return nil, fmt.Errorf("tokenizer: %q is not in the vocabulary", piece)
				}
				id = b.unk
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (b *BPE) words(text string) ([]string, error) {
	if !b.byteLevel {
		return strings.Fields(text), nil
	}

	var words []string
	m, err := b.split.FindStringMatch(text)
	for m != nil && err == nil {
		words = append(words, m.String())
		m, err = b.split.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("tokenizer: pre-tokenize: %w", err)
	}
	return words, nil
}

func (b *BPE) symbols(word string) []string {
	if b.byteLevel {
		syms := make([]string, len(word))
		for i := 0; i < len(word); i++ {
			syms[i] = string(byteEncoder[word[i]])
		}
		return syms
	}

	syms := make([]string, 0, utf8.RuneCountInString(word))
	for _, r := range word {
		syms = append(syms, string(r))
	}
	return syms
}

// merge repeatedly joins the adjacent pair with the lowest rank.
func (b *BPE) merge(syms []string) []string {
	for len(syms) > 1 {
		best, bestRank := -1, math.MaxInt
		for i := 0; i+1 < len(syms); i++ {
			if rank, ok := b.ranks[pair{syms[i], syms[i+1]}]; ok && rank < bestRank {
				best, bestRank = i, rank
			}
		}
		if best < 0 {
			break
		}
		syms = slices.Replace(syms, best, best+2, syms[best]+syms[best+1])
	}
	return syms
}

// Decode converts ids back to text. Control tokens are dropped.
func (b *BPE) Decode(tokens []int32) (string, error) {
	var sb strings.Builder
	for i, id := range tokens {
		if b.special[id] {
			continue
		}
		piece, ok := b.reverse[id]
		if !ok {
			return "", fmt.Errorf("tokenizer: unknown id %d", id)
		}
		if !b.byteLevel {
			if i > 0 && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(piece)
			continue
		}
		for _, r := range piece {
			if c, ok := byteDecoder[r]; ok {
				sb.WriteByte(c)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	return sb.String(), nil
}

func (b *BPE) VocabSize() int  { return len(b.reverse) }
func (b *BPE) BosToken() int32 { return b.bos }
func (b *BPE) EosToken() int32 { return b.eos }
func (b *BPE) PadToken() int32 { return b.pad }
func (b *BPE) UnkToken() int32 { return b.unk }

func (b *BPE) IsSpecialToken(token int32) bool {
	return b.special[token]
}
