package model

import (
	"strings"
)

// checkpointName maps a tensor name found in a Hugging Face RoBERTa
// checkpoint to this model's naming. It reports false for tensors the
// classifier has no use for (masked-LM head, pooler, buffers).
//
// Handled variants:
//   - base model exports without the "roberta." prefix
//   - legacy LayerNorm names "gamma"/"beta"
func checkpointName(name string) (string, bool) {
	switch {
	case strings.HasPrefix(name, "lm_head."),
		strings.Contains(name, "pooler."),
		strings.HasSuffix(name, "position_ids"):
		return "", false
	}

	if strings.HasPrefix(name, "embeddings.") || strings.HasPrefix(name, "encoder.") {
		name = "roberta." + name
	}

	if strings.Contains(name, "LayerNorm.") {
		name = strings.Replace(name, "LayerNorm.gamma", "LayerNorm.weight", 1)
		name = strings.Replace(name, "LayerNorm.beta", "LayerNorm.bias", 1)
	}
	return name, true
}
