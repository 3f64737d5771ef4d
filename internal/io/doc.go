// Package ioutils provides file system, archive, format sniffing and image
// utilities.
//
// # File Operations
//
// Outputs are always written atomically: content goes to "<path>.part" and
// is renamed into place once complete.
//
//	err := ioutils.CopyFile(ctx, "/in/abc.mp4", "/out/abc.mp4")
//	err := ioutils.WriteAtomic(path, func(w io.Writer) error { ... })
//	err := ioutils.MoveFile(ctx, "/work/dl/abc.jpg", "/work/extract/abc/abc.jpg")
//
// # Format Sniffing
//
// File formats are identified by their leading bytes, never by name:
//
//	format, _ := ioutils.SniffFile("/in/3f2504e0-...")
//	// format == ioutils.FormatMP4
//
// # Archives
//
// Zip archives can be listed without extraction, or extracted flat:
//
//	entries, _ := ioutils.ListZip("/in/mydata~1.zip")
//	files, _ := ioutils.ExtractZip(ctx, "/in/mydata~1.zip", "/work/extract/mydata~1")
//
// # Image Processing
//
// The ImageService scales overlays and composites them onto photos:
//
//	svc := ioutils.NewImageService(95)
//	out := svc.Composite(main, overlay)
package ioutils
