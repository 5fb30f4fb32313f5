package fetcher

import "errors"

// ErrEmptyBody means the page loaded but no article text could be extracted.
var ErrEmptyBody = errors.New("empty article body")
