package loader

import "io"

// ProgressReader reports the running byte count after every read. Total is
// zero or negative when the length is unknown.
type ProgressReader struct {
	Reader     io.Reader
	Total      int64
	Current    int64
	OnProgress func(current, total int64)
}

func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	pr.Current += int64(n)

	if n > 0 && pr.OnProgress != nil {
		pr.OnProgress(pr.Current, pr.Total)
	}

	return n, err
}
