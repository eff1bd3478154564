package suggestions

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Side selects which end of the text survives truncation.
type Side int

const (
	// SideLeft keeps the right end of the text (drop earlier tokens).
	SideLeft Side = iota
	// SideRight keeps the left end of the text (drop later tokens).
	SideRight
)

// Tokenizer truncates text to a token budget and reports the resulting count.
type Tokenizer interface {
	Truncate(text string, maxTokens int, side Side) (string, int)
	Count(text string) int
}

const encodingName = "cl100k_base"

// TiktokenTokenizer counts with the cl100k_base BPE. The encoding data is
// fetched lazily on first use; if that fails we fall back to a bytes-per-token
// estimate so suggestions keep working offline.
type TiktokenTokenizer struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenizer() *TiktokenTokenizer {
	return &TiktokenTokenizer{}
}

func (t *TiktokenTokenizer) encoding() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			slog.Warn("tokenizer: encoding unavailable, using estimates", "encoding", encodingName, "error", err)
			return
		}
		t.enc = enc
	})
	return t.enc
}

func (t *TiktokenTokenizer) Count(text string) int {
	if enc := t.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

func (t *TiktokenTokenizer) Truncate(text string, maxTokens int, side Side) (string, int) {
	if maxTokens <= 0 {
		return "", 0
	}
	enc := t.encoding()
	if enc == nil {
		return estimateTruncate(text, maxTokens, side)
	}
	ids := enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text, len(ids)
	}
	if side == SideLeft {
		ids = ids[len(ids)-maxTokens:]
	} else {
		ids = ids[:maxTokens]
	}
	return enc.Decode(ids), maxTokens
}

// estimateCharsPerToken is the usual rule of thumb for source code.
const estimateCharsPerToken = 4

func estimateTokens(text string) int {
	return (len(text) + estimateCharsPerToken - 1) / estimateCharsPerToken
}

func estimateTruncate(text string, maxTokens int, side Side) (string, int) {
	if estimateTokens(text) <= maxTokens {
		return text, estimateTokens(text)
	}
	keep := maxTokens * estimateCharsPerToken
	if side == SideLeft {
		text = text[len(text)-keep:]
	} else {
		text = text[:keep]
	}
	return text, maxTokens
}
