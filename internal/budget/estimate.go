package budget

// CharsPerToken is the heuristic ratio used to size text.
const CharsPerToken = 4

// EstimateTokens returns ceil(len(text)/CharsPerToken). It is monotonic in
// the length of text, so appending content never lowers the estimate.
func EstimateTokens(text string) int {
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}
