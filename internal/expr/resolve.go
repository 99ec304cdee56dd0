package expr

// Resolve looks up a dotted path in a (possibly nested) map, e.g.
// ["customer", "risk_score"] against {"customer": {"risk_score": 42}}.
// It is format-agnostic about where env came from — decision evaluation
// builds env as token data layered over bound context values (§4.4) before
// calling Resolve.
func Resolve(env map[string]interface{}, path []string) (interface{}, bool) {
	var cur interface{} = env
	for _, segment := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[segment]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
