package hook

// Reset exposes reset to tests.
var Reset = reset
