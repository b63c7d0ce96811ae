// Package store persists attachment records and their downloaded state in BoltDB.
//
//	st, err := store.Open("/data/attachments.db")
//	defer st.Close()
//
//	records, _ := store.LoadManifest("manifest.json")
//	st.SaveAttachments(records)
//
//	st.MarkAttachmentDownloaded("ABCD2345", model.CustomLibrary(1), true)
//
// Opening with an empty path gives a memory-only store, useful in tests.
package store
