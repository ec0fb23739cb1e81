package model

import "time"

// UsageMetric is one network counter sample written by the monitoring poller.
// Counters are bytes transferred since the previous sample.
type UsageMetric struct {
	ServerID   int64     `db:"server_id"   json:"server_id"`
	NetworkIn  uint64    `db:"network_in"  json:"network_in"`
	NetworkOut uint64    `db:"network_out" json:"network_out"`
	SampledAt  time.Time `db:"sampled_at"  json:"sampled_at"`
}

func (u UsageMetric) Total() uint64 { return u.NetworkIn + u.NetworkOut }
