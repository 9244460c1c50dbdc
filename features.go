package linestream

// Features describes the capabilities of a backend.
// Use this to check what operations are supported before calling them,
// or to select optimal code paths.
type Features struct {
	// Append indicates NewWriter honors WithStreamAppend, so records can
	// be added to an existing file. Object stores (S3) cannot append.
	Append bool

	// RangeRead indicates NewReader honors WithStreamOffset and
	// WithStreamLimit without reading and discarding the skipped bytes.
	RangeRead bool

	// Seek indicates readers returned by NewReader implement io.Seeker.
	// When true, Reader.Rewind seeks in place instead of reopening the
	// stream.
	Seek bool

	// ListPrefix indicates the backend supports efficient prefix listing.
	// When false, the entire tree may be scanned.
	ListPrefix bool
}
