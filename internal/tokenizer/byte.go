package tokenizer

import "fmt"

// Byte vocabulary layout: the four control tokens in RoBERTa order,
// followed by the 256 byte values.
const (
	byteBos    = 0
	bytePad    = 1
	byteEos    = 2
	byteUnk    = 3
	byteOffset = 4
)

// Byte maps every UTF-8 byte to its own id. It needs no vocabulary files,
// so it pairs with randomly initialized presets whose vocab_size is at
// least 260.
type Byte struct{}

// NewByte returns the byte tokenizer.
func NewByte() *Byte { return &Byte{} }

// Encode returns one id per byte of text.
func (*Byte) Encode(text string) ([]int32, error) {
	ids := make([]int32, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int32(text[i]) + byteOffset
	}
	return ids, nil
}

// Decode drops control tokens and reassembles the bytes.
func (*Byte) Decode(tokens []int32) (string, error) {
	buf := make([]byte, 0, len(tokens))
	for _, id := range tokens {
		switch {
		case id < byteOffset:
		case id < byteOffset+256:
			buf = append(buf, byte(id-byteOffset))
		default:
			return "", fmt.Errorf("tokenizer: id %d outside byte vocabulary", id)
		}
	}
	return string(buf), nil
}

func (*Byte) VocabSize() int  { return byteOffset + 256 }
func (*Byte) BosToken() int32 { return byteBos }
func (*Byte) EosToken() int32 { return byteEos }
func (*Byte) PadToken() int32 { return bytePad }
func (*Byte) UnkToken() int32 { return byteUnk }

func (*Byte) IsSpecialToken(token int32) bool {
	return token >= 0 && token < byteOffset
}
