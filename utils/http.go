// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for upstream market-data calls. Bounded
// timeout so a slow provider cannot stall request handling.
var HTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}
