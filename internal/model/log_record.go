package model

// LogRecord is an ABI-encoded market event as written to storage. Address
// is the emitting pool, or the engine for global events. Seq orders records
// within one engine.
type LogRecord struct {
	Seq        uint64   `json:"seq"`
	Address    string   `json:"address"`
	Topics     []string `json:"topics"`
	Data       string   `json:"data"`
	Timestamp  uint64   `json:"timestamp"`
	IngestedAt string   `json:"ingested_at"`
}

// Topic0 returns the event signature hash, or "" when absent.
func (lr LogRecord) Topic0() string {
	if len(lr.Topics) == 0 {
		return ""
	}
	return lr.Topics[0]
}
