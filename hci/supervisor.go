package hci

// SupervisionTimeout computes the LE connection supervisor timeout
// from the negotiated connection latency and the connection interval
// maximum: `(1 + conn_latency) * conn_interval_max_ms *
// max(2, multiplier)`, clamped below at 500ms, returned in units of
// 10ms as the wire format requires.
func SupervisionTimeout(connLatency uint16, connIntervalMaxMs float64, multiplier int) uint16 {
	if multiplier < 2 {
		multiplier = 2
	}
	ms := (1 + float64(connLatency)) * connIntervalMaxMs * float64(multiplier)
	if ms < 500 {
		ms = 500
	}
	units := uint16(ms / 10)
	if units < 50 {
		units = 50
	}
	return units
}
