package slack

// Export internal functions for testing
var (
	TestWithCacheTTL = WithCacheTTL
	CompareTS        = compareTS
)
