package pricing

// DefaultTable returns the built-in price list. Prices are credits per
// 1000 tokens for chat providers and credits per call for the OCR
// provider. Deployments override these via configuration.
func DefaultTable() *Table {
	return NewTable(map[string]Provider{
		"openai": {
			DefaultModel: "gpt-4o-mini",
			Models: map[string]ModelPrice{
				"gpt-4o":      {InputPerKilo: 0.0025, OutputPerKilo: 0.01},
				"gpt-4o-mini": {InputPerKilo: 0.00015, OutputPerKilo: 0.0006},
				"gpt-4.1":     {InputPerKilo: 0.002, OutputPerKilo: 0.008},
			},
		},
		"anthropic": {
			DefaultModel: "claude-sonnet",
			Models: map[string]ModelPrice{
				"claude-sonnet": {InputPerKilo: 0.003, OutputPerKilo: 0.015},
				"claude-haiku":  {InputPerKilo: 0.0008, OutputPerKilo: 0.004},
			},
		},
		"vision-ocr": {
			DefaultModel: "page",
			Models: map[string]ModelPrice{
				"page": {PerCall: 0.0015},
			},
		},
	})
}
