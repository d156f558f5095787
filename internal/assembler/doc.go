// Package assembler turns the per-scene videos of a job into one clip.
//
// Every scene is checked before any transform runs. Each scene is then
// normalized to the target frame (speed change with pitch-preserving audio
// tempo, scale-and-crop fill, fixed frame rate, 48 kHz stereo AAC) and the
// normalized renders are joined in ordinal order with hard cuts or a
// crossfade chain. The returned segments describe where each scene landed on
// the output timeline and drive caption windows downstream.
package assembler
