// Package selection resolves what a session should capture, either by
// prompting an external picker binary or by decoding a previously
// issued restore token. It owns the on-wire selection spec grammar
// (screen:/window:/region:) and both restore-token payload versions.
package selection
