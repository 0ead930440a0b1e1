package doc

// LibraryVersion is the lectern release version.
const LibraryVersion = "0.1.0"
