package wat

import (
	"github.com/kilnforge/wasmcore/wat/internal/encoder"
	"github.com/kilnforge/wasmcore/wat/internal/parser"
	"github.com/kilnforge/wasmcore/wat/internal/token"
)

func Compile(source string) ([]byte, error) {
	tokens := token.Tokenize(source)
	p := parser.New(tokens)
	mod, err := p.Parse()
	if err != nil {
		return nil, err
	}
	return encoder.Encode(mod), nil
}
