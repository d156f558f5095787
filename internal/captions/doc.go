// Package captions burns scene dialogue onto the assembled clip.
//
// The caption font is resolved explicitly before anything renders, and every
// caption window is checked against the probed clip duration so an
// out-of-range window fails with a time-window error instead of being
// clamped. Rendering is a drawtext chain: centered, bold, white with a black
// border, sized relative to the frame height. An SRT sidecar with the same
// cues can be written alongside.
package captions
