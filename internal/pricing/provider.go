package pricing

import "strings"

// ProviderOpenRouter is the aggregator provider every unmapped vendor falls back to.
const ProviderOpenRouter = "openrouter"

// directProviders lists vendors whose prices come from their own list prices.
var directProviders = map[string]bool{
	"openai":     true,
	"anthropic":  true,
	"google":     true,
	"xai":        true,
	"deepseek":   true,
	"mistral":    true,
	"perplexity": true,
}

// ProviderFromVendor maps a catalog vendor slug to the provider whose price
// feed is expected to cover it.
func ProviderFromVendor(vendorSlug string) string {
	v := strings.ToLower(strings.TrimSpace(vendorSlug))
	if directProviders[v] {
		return v
	}
	return ProviderOpenRouter
}
