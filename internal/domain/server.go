package domain

// ServerConfig describes one configured NNTP server. Servers are
// constructed at startup and are immutable for the process life;
// connection pools over them are built lazily by the Server Pool.
type ServerConfig struct {
	ID            string
	Host          string
	Port          int
	Username      string
	Password      string
	TLS           bool
	MaxConnection int
	PipelineDepth int
	Priority      int
}

// HistoryEntry is an immutable snapshot of a terminal Job, appended to
// history once and never mutated.
type HistoryEntry struct {
	ID             int64
	JobID          int64
	Name           string
	Category       string
	Destination    string
	Status         JobStatus
	SizeBytes      int64
	DownloadTimeMS int64
	CompletedAt    int64 // unix seconds
}
