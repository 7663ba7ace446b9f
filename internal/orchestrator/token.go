package orchestrator

import "encoding/json"

// tokenDivisor scales the byte-length estimate down. The exact constant is
// implementation-defined (§9, Open Questions); what's observable is the
// monotonicity and upper-bound property below.
const tokenDivisor = 4

// estimateTokens is a deterministic, cheap function of the serialized
// request's byte length and the intent name's length. It is monotonic in
// input size (a strictly larger input never produces a strictly smaller
// estimate) and bounded above by twice the input's byte length, which
// holds by construction since tokenDivisor >= 1.
func estimateTokens(intent string, params map[string]any) (int, error) {
	serialized, err := json.Marshal(params)
	if err != nil {
		return 0, err
	}
	size := len(serialized) + len(intent)
	est := size / tokenDivisor
	if est == 0 && size > 0 {
		est = 1
	}
	return est, nil
}
