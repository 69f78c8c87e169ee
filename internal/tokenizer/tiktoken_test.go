package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadEncoding skips when the encoding cannot be fetched, as in
// sandboxes without network access.
func loadEncoding(t *testing.T, name string) *TikToken {
	t.Helper()
	tok, err := NewTikToken(name)
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	return tok
}

func TestTikTokenRoundtrip(t *testing.T) {
	tok := loadEncoding(t, "cl100k_base")

	for _, text := range []string{"Hello, world!", "Hello\nWorld\n", "Hello 世界! 🌍", ""} {
		ids, err := tok.Encode(text)
		require.NoError(t, err)
		decoded, err := tok.Decode(ids)
		require.NoError(t, err)
		assert.Equal(t, text, decoded)
	}
}

func TestTikTokenSpecialTokens(t *testing.T) {
	tok := loadEncoding(t, "cl100k_base")

	assert.Equal(t, int32(-1), tok.BosToken())
	assert.Equal(t, int32(100257), tok.EosToken())
	assert.True(t, tok.IsSpecialToken(100257))
	assert.False(t, tok.IsSpecialToken(1000))
	assert.Equal(t, 100277, tok.VocabSize())
	assert.Equal(t, "cl100k_base", tok.Name())
}

func TestTikTokenPair(t *testing.T) {
	tok := loadEncoding(t, "r50k_base")
	eos := tok.EosToken()
	assert.Equal(t, int32(50256), eos)

	enc, err := EncodePair(tok, "a cat", "a dog", 0)
	require.NoError(t, err)
	assert.Equal(t, eos, enc.IDs[0])
	assert.Equal(t, eos, enc.IDs[len(enc.IDs)-1])

	text, err := tok.Decode(enc.IDs)
	require.NoError(t, err)
	assert.Equal(t, "a cata dog", text)
}

func TestTikTokenUnknownEncoding(t *testing.T) {
	_, err := NewTikToken("invalid_encoding_xyz")
	assert.Error(t, err)
}
