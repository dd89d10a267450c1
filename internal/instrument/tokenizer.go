package instrument

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Tokenizer produces a redacted, stable identifier for an instrument. It is
// an injected collaborator; nothing here is a security boundary.
type Tokenizer interface {
	Tokenize(pan string) string
}

// ULIDTokenizer issues tokens of the form tok_<last4>_<ulid>. The token is
// generated once per instrument and never changes afterwards.
type ULIDTokenizer struct{}

// Tokenize implements Tokenizer.
func (ULIDTokenizer) Tokenize(pan string) string {
	last4 := pan
	if len(pan) > 4 {
		last4 = pan[len(pan)-4:]
	}
	return fmt.Sprintf("tok_%s_%s", last4, ulid.Make().String())
}
