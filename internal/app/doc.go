// Package app wires the authcore services together: it constructs the
// audit logger, rate limiter, policy engine, issuers and gateway from
// configuration, runs the HTTP server around them, and tears everything
// down in reverse order on shutdown.
package app
