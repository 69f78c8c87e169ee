package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSpecialTokens is returned when a vocabulary lacks the separator
// tokens needed to frame a sequence.
var ErrNoSpecialTokens = errors.New("tokenizer: no bos/eos tokens")

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	// Encode converts text to token ids without special tokens.
	Encode(text string) ([]int32, error)

	// Decode converts token ids back to text.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int

	// BosToken, EosToken, PadToken and UnkToken return -1 when the
	// vocabulary has no such token.
	BosToken() int32
	EosToken() int32
	PadToken() int32
	UnkToken() int32

	// IsSpecialToken reports whether token is a control token.
	IsSpecialToken(token int32) bool
}

// Load opens a tokenizer by kind: bpe or hf read a tokenizer.json file
// (or a directory holding tokenizer.json or vocab.json with merges.txt),
// tiktoken takes an encoding or model name, byte needs no path. auto
// picks hf when path exists on disk, byte when path is empty, and
// tiktoken otherwise.
func Load(kind, path string) (Tokenizer, error) {
	switch strings.ToLower(kind) {
	case "bpe", "hf":
		return LoadHuggingFace(path)
	case "tiktoken":
		return loadTikToken(path)
	case "byte":
		return NewByte(), nil
	case "auto", "":
		if path == "" {
			return NewByte(), nil
		}
		if _, err := os.Stat(path); err == nil {
			return LoadHuggingFace(path)
		}
		return loadTikToken(path)
	default:
		return nil, fmt.Errorf("tokenizer: unknown kind %q", kind)
	}
}

// LoadHuggingFace loads a byte-level BPE tokenizer from path, which is a
// tokenizer.json file or a model directory.
func LoadHuggingFace(path string) (*BPE, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	if !info.IsDir() {
		return LoadTokenizerJSON(path)
	}

	file := filepath.Join(path, "tokenizer.json")
	if _, err := os.Stat(file); err == nil {
		return LoadTokenizerJSON(file)
	}
	vocab, merges := filepath.Join(path, "vocab.json"), filepath.Join(path, "merges.txt")
	if _, err := os.Stat(vocab); err == nil {
		return LoadVocabMerges(vocab, merges)
	}
	return nil, fmt.Errorf("tokenizer: %s has neither tokenizer.json nor vocab.json", path)
}

func loadTikToken(name string) (*TikToken, error) {
	tok, err := NewTikToken(name)
	if err == nil {
		return tok, nil
	}
	if tok, modelErr := NewTikTokenForModel(name); modelErr == nil {
		return tok, nil
	}
	return nil, err
}
