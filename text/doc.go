// Package text is the font cache of the UI streaming subsystem.
//
// FontStorage resolves font families to font files, keeps one resource per
// file (raw bytes, parsed font, EM-relative metrics) and one Font per
// (file, size) pair. Glyphs are rasterized lazily on first request, packed
// into the glyph atlas and cached until Close:
//
//	fonts := text.New(glyphAtlas, text.Config{})
//	f, _ := fonts.GetFont("", 16) // default face
//	g := fonts.GetGlyphInfo(f, 'A')
//	// g.UV addresses the atlas, g.Advance moves the pen.
//
// A glyph that cannot be rasterized resolves to an opaque placeholder box,
// so text drawing never fails a frame.
//
// WriteString turns a string into textured quads in a vertex span.
package text
