package llm

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"NewsDigest/internal/ports"
)

const fallbackEncoding = "cl100k_base"

var registerLoader sync.Once

// TiktokenCounter counts tokens with the BPE ranks bundled in the binary.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var _ ports.TokenCounter = (*TiktokenCounter)(nil)

// NewTiktokenCounter picks the encoding of model, or cl100k_base for models tiktoken does not know.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	registerLoader.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("load %s encoding: %w", fallbackEncoding, err)
		}
	}
	return &TiktokenCounter{encoding: enc}, nil
}

func (t *TiktokenCounter) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// ApproxCounter estimates four characters per token. It is only used when no
// BPE table can be loaded.
type ApproxCounter struct{}

var _ ports.TokenCounter = ApproxCounter{}

func (ApproxCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
