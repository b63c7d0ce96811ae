// Package ioutils provides file system utilities for the attachment downloader.
//
// # Paths
//
// PathResolver maps attachments to deterministic local paths:
//
//	resolver := ioutils.NewPathResolver("/data/attachments")
//	path, err := resolver.AttachmentPath(model.CustomLibrary(1), "ABCD2345", "paper.pdf", "application/pdf")
//	// /data/attachments/L1/ABCD2345/paper.pdf
//
// # Validation
//
// Validator detects corrupted local copies before they are reused:
//
//	ok := ioutils.NewValidator().IsValid(path, "application/pdf")
//
// # Snapshots
//
// Web snapshots are delivered as zip archives and extracted with Unzip.
//
// # Images
//
// ImageService writes JPEG previews of image attachments:
//
//	err := ioutils.NewImageService().Thumbnail(src, ioutils.ThumbnailPath(src), 256)
package ioutils
