// Package audio reads the RIFF/WAVE chunk structure of an audio file.
// It walks tagged chunks in order, decodes the PCM format block, skips unknown
// chunks by their declared length and stops at the data chunk, handing back a
// reader positioned at the first payload byte.
package audio
