// Package frame converts chunk payloads to and from still images.
//
// A payload is first wrapped in a self-checking text envelope (see
// MarshalPayload) and then rendered by a Codec. Decoding reverses both
// steps; any damage introduced on the way, e.g. by lossy video compression,
// surfaces as ErrUnreadable or ErrMalformedPayload rather than as altered
// content.
package frame
