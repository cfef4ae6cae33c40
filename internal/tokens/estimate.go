// Package tokens estimates the token cost of admitted messages for
// access logging.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens with the cl100k_base encoding. The count is an
// estimate for logging and capacity planning, not billing; the broker
// does its own accounting.
type Estimator struct {
	once  sync.Once
	codec tokenizer.Codec
	err   error
}

func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns the approximate token count of text.
func (e *Estimator) Estimate(text string) (int, error) {
	e.once.Do(func() {
		e.codec, e.err = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if e.err != nil {
		return 0, e.err
	}

	ids, _, err := e.codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
