package domain

// ArticleStatus is the unit of resume for crash recovery: a restart
// re-enqueues only Pending and InFlight articles.
type ArticleStatus string

const (
	ArticlePending  ArticleStatus = "pending"
	ArticleInFlight ArticleStatus = "in_flight"
	ArticleDone     ArticleStatus = "done"
	ArticleFailed   ArticleStatus = "failed"
)

// Article is a single NNTP message belonging to one File within a Job.
type Article struct {
	ID        int64
	JobID     int64
	FileIndex int

	MessageID string
	Number    int // segment position within the file, per the NZB
	Offset    int64
	Length    int64

	Status      ArticleStatus
	Attempts    int
	ServerID    string // empty when unassigned
	MissingFrom map[string]bool
}

// File is one output file within a Job, assembled from one or more
// Articles. Completed is set only when BytesWritten equals Size and
// every owning Article is Done — the Engine enforces that invariant, this
// struct just carries the fields.
type File struct {
	ID    int64
	JobID int64
	Index int

	Name             string
	OriginalName     string // pre-DirectRename name, empty if never renamed
	Size             int64
	BytesWritten     int64
	Completed        bool
	TotalSegments    int
	Subject          string
	Groups           []string
	Password         string

	// allocated guards the one-time pre-allocation syscall described in
	// the Download Engine's file pre-allocation note.
	allocated bool
}

// MarkAllocated flips the pre-allocation guard. Not safe for concurrent
// use across files sharing the same File value; callers hold one File
// per path behind the Engine's FileWriter, which already serializes
// access per path.
func (f *File) MarkAllocated()   { f.allocated = true }
func (f *File) IsAllocated() bool { return f.allocated }

// IsPar2 reports whether this file is a PAR2 index or recovery volume,
// used by DirectRename's article-scheduling bias.
func (f *File) IsPar2() bool {
	n := len(f.Name)
	return n > 5 && (hasSuffixFold(f.Name, ".par2"))
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := 0; i < len(suffix); i++ {
		a, b := tail[i], suffix[i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
