package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for identity and bot-check provider calls
var HTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}
