package tokenizer

import "fmt"

// Encoding is one framed example.
type Encoding struct {
	IDs []int32
	// Truncated reports whether content tokens were dropped to fit.
	Truncated bool
}

// EncodePair frames first and second as <s> A </s></s> B </s>. An empty
// second yields the single-sequence layout <s> A </s>. When the result
// would exceed maxLen, tokens are dropped from the end of the longer side
// one at a time, from second on ties. maxLen <= 0 disables truncation.
func EncodePair(tok Tokenizer, first, second string, maxLen int) (Encoding, error) {
	bos, eos := tok.BosToken(), tok.EosToken()
	if eos < 0 {
		return Encoding{}, ErrNoSpecialTokens
	}
	if bos < 0 {
		bos = eos
	}

	a, err := tok.Encode(first)
	if err != nil {
		return Encoding{}, err
	}
	var b []int32
	specials := 2
	if second != "" {
		if b, err = tok.Encode(second); err != nil {
			return Encoding{}, err
		}
		specials = 4
	}

	var enc Encoding
	if maxLen > 0 {
		if maxLen <= specials {
			return Encoding{}, fmt.Errorf("tokenizer: max length %d leaves no room for text", maxLen)
		}
		a, b, enc.Truncated = truncateLongestFirst(a, b, maxLen-specials)
	}

	ids := make([]int32, 0, len(a)+len(b)+specials)
	ids = append(ids, bos)
	ids = append(ids, a...)
	ids = append(ids, eos)
	if second != "" {
		ids = append(ids, eos)
		ids = append(ids, b...)
		ids = append(ids, eos)
	}
	enc.IDs = ids
	return enc, nil
}

func truncateLongestFirst(a, b []int32, budget int) ([]int32, []int32, bool) {
	truncated := false
	for len(a)+len(b) > budget {
		truncated = true
		if len(a) > len(b) {
			a = a[:len(a)-1]
		} else {
			b = b[:len(b)-1]
		}
	}
	return a, b, truncated
}
