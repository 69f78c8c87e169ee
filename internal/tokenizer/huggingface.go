package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// tokenizerJSON is the subset of a Hugging Face tokenizer.json in use.
type tokenizerJSON struct {
	Model struct {
		Type   string           `json:"type"`
		Vocab  map[string]int32 `json:"vocab"`
		Merges []mergeRule      `json:"merges"`
	} `json:"model"`
	PreTokenizer *component `json:"pre_tokenizer"`
	Decoder      *component `json:"decoder"`
	AddedTokens  []struct {
		ID      int32  `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

type component struct {
	Type          string      `json:"type"`
	Pretokenizers []component `json:"pretokenizers"`
}

func (c *component) byteLevel() bool {
	if c == nil {
		return false
	}
	if c.Type == "ByteLevel" {
		return true
	}
	for i := range c.Pretokenizers {
		if c.Pretokenizers[i].byteLevel() {
			return true
		}
	}
	return false
}

// mergeRule accepts both the legacy "a b" and the newer ["a", "b"] form.
type mergeRule [2]string

func (m *mergeRule) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		first, second, ok := strings.Cut(s, " ")
		if !ok {
			return fmt.Errorf("merge %q: want two symbols", s)
		}
		*m = mergeRule{first, second}
		return nil
	}
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("merge %v: want two symbols", pair)
	}
	*m = mergeRule{pair[0], pair[1]}
	return nil
}

// LoadTokenizerJSON loads a BPE model from a Hugging Face tokenizer.json.
func LoadTokenizerJSON(path string) (*BPE, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: read %s: %w", path, err)
	}

	var file tokenizerJSON
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("tokenizer: parse %s: %w", path, err)
	}
	if file.Model.Type != "" && file.Model.Type != "BPE" {
		return nil, fmt.Errorf("tokenizer: %s model is not supported", file.Model.Type)
	}

	merges := make([][2]string, len(file.Model.Merges))
	for i, m := range file.Model.Merges {
		merges[i] = m
	}
	byteLevel := file.PreTokenizer.byteLevel() || file.Decoder.byteLevel()
	tok := NewBPE(file.Model.Vocab, merges, byteLevel)

	for _, added := range file.AddedTokens {
		tok.addToken(added.Content, added.ID, added.Special)
	}
	tok.SetSpecialTokens(
		lookup(tok.vocab, "<s>", "<bos>", "[CLS]"),
		lookup(tok.vocab, "</s>", "<eos>", "[SEP]"),
		lookup(tok.vocab, "<pad>", "[PAD]"),
		lookup(tok.vocab, "<unk>", "[UNK]"),
	)
	return tok, nil
}

// LoadVocabMerges loads the vocab.json and merges.txt pair that RoBERTa
// checkpoints ship alongside tokenizer.json.
func LoadVocabMerges(vocabPath, mergesPath string) (*BPE, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: read %s: %w", vocabPath, err)
	}
	var vocab map[string]int32
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("tokenizer: parse %s: %w", vocabPath, err)
	}

	f, err := os.Open(mergesPath)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	defer f.Close()

	var merges [][2]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		first, second, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("tokenizer: %s: bad merge %q", mergesPath, line)
		}
		merges = append(merges, [2]string{first, second})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tokenizer: read %s: %w", mergesPath, err)
	}

	tok := NewBPE(vocab, merges, true)
	tok.SetSpecialTokens(
		lookup(vocab, "<s>"),
		lookup(vocab, "</s>"),
		lookup(vocab, "<pad>"),
		lookup(vocab, "<unk>"),
	)
	return tok, nil
}

func lookup(vocab map[string]int32, names ...string) int32 {
	for _, name := range names {
		if id, ok := vocab[name]; ok {
			return id
		}
	}
	return -1
}
