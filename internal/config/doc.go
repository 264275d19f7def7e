// Package config loads, normalizes, and validates mia configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MIA_SINK_URL and MIA_USER_ID. The Config type centralizes every knob the
// capture daemon and the short-lived controller invocations need, so both
// sides of the socket agree on where the state database, socket, and logs
// live.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
