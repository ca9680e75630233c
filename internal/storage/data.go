package storage

// BatchWriteResult describes a flushed batch file.
type BatchWriteResult struct {
	path        string
	recordCount int
}

func NewBatchWriteResult(path string, recordCount int) BatchWriteResult {
	return BatchWriteResult{path: path, recordCount: recordCount}
}

func (w BatchWriteResult) Path() string        { return w.path }
func (w BatchWriteResult) RecordCount() int    { return w.recordCount }
