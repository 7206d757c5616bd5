package livetablequeue

// NonceSnapshotJob persists the nonce ledger.
type NonceSnapshotJob struct{}

// Kind returns the job type identifier for River
func (NonceSnapshotJob) Kind() string { return "livetable_nonce_snapshot" }
