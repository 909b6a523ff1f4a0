// Package audio converts between float samples, 16-bit PCM and the base64 text
// that carries audio inside JSON messages, and buffers samples for framing.
package audio
