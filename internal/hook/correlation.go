package hook

import (
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"hookrelay/internal/constants"
)

// Correlator pulls an optional correlation id out of a hook body. The value
// at the configured path may be an object or a string holding encoded JSON;
// either way its "id" field is the correlation id. Every failure just means
// there is no id.
type Correlator struct {
	expr jp.Expr
}

func NewCorrelator(path string) (*Correlator, error) {
	if path == "" {
		path = constants.DefaultCorrelationPath
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, err
	}
	return &Correlator{expr: expr}, nil
}

// Lookup returns the correlation id found in body, if any.
func (c *Correlator) Lookup(body []byte) (any, bool) {
	if len(body) == 0 {
		return nil, false
	}
	doc, err := oj.Parse(body)
	if err != nil {
		return nil, false
	}

	matches := c.expr.Get(doc)
	if len(matches) == 0 {
		return nil, false
	}

	value := matches[0]
	if s, ok := value.(string); ok {
		decoded, err := oj.ParseString(s)
		if err != nil {
			return nil, false
		}
		value = decoded
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	id, ok := obj[constants.CorrelationIDField]
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}
