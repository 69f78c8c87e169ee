// Package tokenizer turns sentence pairs into RoBERTa-style token ids.
//
// Three vocabularies are supported:
//   - byte-level BPE loaded from a Hugging Face tokenizer.json, or from
//     vocab.json plus merges.txt
//   - tiktoken encodings through github.com/pkoukk/tiktoken-go
//   - a fixed byte vocabulary for randomly initialized presets
//
// EncodePair lays two texts out as <s> A </s></s> B </s>, truncating the
// longer side first when the pair does not fit.
package tokenizer
