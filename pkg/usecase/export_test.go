package usecase

// ChainScope is exported for testing
var ChainScope = chainScope

// RefreshEvent is exported for testing
var RefreshEvent = refreshEvent
