package domain

// Release is the ephemeral result of parsing an NZB document, before
// Admission assigns it a Job id and persists its Files/Articles. It
// carries exactly the fields Admission needs to decide duplicate status,
// disk space, and category routing.
type Release struct {
	Name        string
	MetaName    string // from <meta type="title">, empty if absent
	Password    string // from <meta type="password">, empty if absent
	RawCategory string // from <meta type="category">, a Newznab numeric ID; empty if absent
	TotalSize   int64
	ContentHash string // sha256 of the raw NZB bytes

	Files []ReleaseFile
}

type ReleaseFile struct {
	Index    int
	Subject  string
	Groups   []string
	Segments []ReleaseSegment
}

type ReleaseSegment struct {
	Number    int
	Bytes     int64
	MessageID string
}

// Size returns the sum of segment byte counts across every file.
func (r *Release) Size() int64 {
	var total int64
	for _, f := range r.Files {
		for _, s := range f.Segments {
			total += s.Bytes
		}
	}
	return total
}
