// Package model defines the core data structures shared by the
// attachment downloader.
//
// # Libraries
//
// LibraryIdentifier distinguishes the personal library from group libraries:
//
//	lib := model.CustomLibrary(1)   // "L1"
//	grp := model.GroupLibrary(42)   // "G42"
//
// # Attachments
//
// Attachment describes a file or URL attached to a bibliographic item.
// Its Kind is either URLKind (nothing to fetch) or FileKind, which carries the
// file name, content type, link type and current Location:
//
//	att := model.Attachment{Key: "ABCD2345", LibraryID: lib, Kind: model.FileKind{...}}
//	d := att.Download() // identity used for in-flight bookkeeping
//
// # Downloads
//
// Download is the (item key, library) pair identifying one unit of download work.
// It is comparable and used as a map key by the download coordinator.
package model
