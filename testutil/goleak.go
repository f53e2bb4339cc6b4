package testutil

import "go.uber.org/goleak"

// GoleakOptions ignores goroutines that dependencies leave behind and that
// are not indicative of leaks in our own code.
var GoleakOptions = []goleak.Option{
	// Idle keep-alive connections parked by HTTP clients talking to
	// httptest servers.
	goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
}
