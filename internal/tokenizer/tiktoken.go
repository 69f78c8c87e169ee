package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encodingCL100kBase = "cl100k_base"

	// endOfText is <|endoftext|>, which frames both sides of a pair
	// since tiktoken encodings have no bos token.
	endOfText = "<|endoftext|>"
)

// TikToken wraps an OpenAI encoding from github.com/pkoukk/tiktoken-go.
// Encodings are fetched on first use and cached in TIKTOKEN_CACHE_DIR.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
	eos      int32
}

// NewTikToken loads an encoding by name, e.g. "r50k_base".
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: tiktoken encoding %q: %w", encodingName, err)
	}
	return newTikToken(encoding, encodingName), nil
}

// NewTikTokenForModel loads the encoding an OpenAI model uses.
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	encoding, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: tiktoken model %q: %w", modelName, err)
	}
	return newTikToken(encoding, modelName), nil
}

func newTikToken(encoding *tiktoken.Tiktoken, name string) *TikToken {
	t := &TikToken{encoding: encoding, name: name, eos: -1}
	if ids := encoding.Encode(endOfText, []string{endOfText}, nil); len(ids) == 1 {
		t.eos = int32(ids[0]) //nolint:gosec // vocabularies are far below 2^31
	}
	return t
}

// Encode converts text to ids. Special token text is encoded as plain text.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)
	ids := make([]int32, len(tokens))
	for i, tok := range tokens {
		ids[i] = int32(tok) //nolint:gosec // vocabularies are far below 2^31
	}
	return ids, nil
}

// Decode converts ids back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	ids := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		if tok != t.eos {
			ids = append(ids, int(tok))
		}
	}
	return t.encoding.Decode(ids), nil
}

// VocabSize returns the size of the encoding including its special tokens.
func (t *TikToken) VocabSize() int {
	switch {
	case t.name == encodingCL100kBase:
		return 100277
	case t.eos >= 0:
		return int(t.eos) + 1
	default:
		return 100000
	}
}

// BosToken returns -1: tiktoken encodings have no bos token.
func (t *TikToken) BosToken() int32 { return -1 }

// EosToken returns the id of <|endoftext|>.
func (t *TikToken) EosToken() int32 { return t.eos }

// PadToken returns -1; batches are padded with the eos id instead.
func (t *TikToken) PadToken() int32 { return -1 }

// UnkToken returns -1: byte fallback makes every input encodable.
func (t *TikToken) UnkToken() int32 { return -1 }

// IsSpecialToken reports whether token is <|endoftext|>.
func (t *TikToken) IsSpecialToken(token int32) bool {
	return token >= 0 && token == t.eos
}

// Name returns the encoding or model name.
func (t *TikToken) Name() string {
	return t.name
}
