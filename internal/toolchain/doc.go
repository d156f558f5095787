// Package toolchain discovers the media binaries and caption fonts the
// pipeline depends on and runs media commands under explicit deadlines.
//
// Lookups are lazy and happen once per process: the first caller pays for
// PATH and fontconfig resolution, everyone after reads the cached answer,
// including a cached failure. Missing tools surface as services.ErrToolNotFound
// and missing fonts as services.ErrFontNotFound so stages fail with a
// discoverability error instead of an opaque ffmpeg exit status.
package toolchain
