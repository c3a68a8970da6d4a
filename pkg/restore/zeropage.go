package restore

// Zero-page scratch layout shared by emitDecompressBlock and by the copy and
// zero-fill loops of the later stages. These eight addresses fall inside
// $00F8..=$00FF, the "zero-page tail" the data model calls out separately
// from the main $0002..=$00F7 zero-page image: the decompressor is still
// actively using this tail as working storage all the way through Block 9,
// so it cannot be restored to its true snapshot contents until Block 10 —
// exactly why it is restored as a distinct literal late in the erasure
// chain rather than folded into the general zero-page decode.
//
// Every decompress call needs four 16-bit values live at once: the
// compressed-stream read cursor, the decompressed-output write cursor, the
// match source pointer (recomputed as dst-offset for each match), and the
// remaining byte count for whichever copy loop — literal or match — is
// currently running. That is exactly eight bytes, with nothing to spare;
// the raw token byte the loop also needs is kept in an ordinary
// (non-zero-page) scratch byte inside the Loader's own resident footprint
// instead, and the offset width is fixed at build time. See decompressor.go.
const (
	zpSrcLo = 0xF8
	zpSrcHi = 0xF9
	zpDstLo = 0xFA
	zpDstHi = 0xFB
	zpMatLo = 0xFC
	zpMatHi = 0xFD
	zpCntLo = 0xFE
	zpCntHi = 0xFF
)

// zpTailLen is len($F8..=$FF).
const zpTailLen = 8
