// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer turns sentence pairs into model input ids.
//
// Example:
//
//	tok, err := tokenizer.Load("auto", "models/roberta-base")
//	enc, err := tokenizer.EncodePair(tok, "A man is eating.", "Someone eats.", 128)
package tokenizer

import "github.com/born-ml/seqreg/internal/tokenizer"

// Tokenizer encodes text to ids and back.
type Tokenizer = tokenizer.Tokenizer

// Encoding is a framed, possibly truncated pair.
type Encoding = tokenizer.Encoding

// Load opens a tokenizer. kind is one of auto, bpe, hf, tiktoken or
// byte; path is a tokenizer file, a model directory or an encoding name.
func Load(kind, path string) (Tokenizer, error) {
	return tokenizer.Load(kind, path)
}

// NewByte returns the dependency-free byte tokenizer.
func NewByte() Tokenizer {
	return tokenizer.NewByte()
}

// EncodePair frames first and second as <s> A </s></s> B </s>, trimming
// the longer text first until the result fits in maxLen ids. An empty
// second yields <s> A </s>.
func EncodePair(tok Tokenizer, first, second string, maxLen int) (Encoding, error) {
	return tokenizer.EncodePair(tok, first, second, maxLen)
}
