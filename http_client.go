package main

import (
	"net/http"
	"time"
)

const snapshotHTTPTimeout = 30 * time.Second
const analysisHTTPTimeout = 90 * time.Second

// snapshotHTTPClient fetches camera snapshots; analysisHTTPClient carries
// the long-running vision calls. Both are bounded so no check can block
// indefinitely.
var snapshotHTTPClient = &http.Client{
	Timeout: snapshotHTTPTimeout,
}

var analysisHTTPClient = &http.Client{
	Timeout: analysisHTTPTimeout,
}
