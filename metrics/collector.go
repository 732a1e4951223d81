// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports per-channel Prometheus metrics: live
// connection count, bytes sent/received, and sync-call latency.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"code.hybscloud.com/ofchannel/channel"
)

// Transport wraps a channel.Transport and counts bytes crossing it in
// each direction, so a Collector can report per-channel throughput
// without the channel package itself carrying any metrics
// dependency.
type Transport struct {
	channel.Transport
	sent atomic.Uint64
	recv atomic.Uint64
}

// Instrument wraps t for byte counting. Pass the result to
// channel.New (or branch.NewParent) in place of t, then register the
// same *Transport with a Collector via Add.
func Instrument(t channel.Transport) *Transport {
	return &Transport{Transport: t}
}

func (t *Transport) Read(p []byte) (int, error) {
	n, err := t.Transport.Read(p)
	t.recv.Add(uint64(n))
	return n, err
}

func (t *Transport) Write(p []byte) (int, error) {
	n, err := t.Transport.Write(p)
	t.sent.Add(uint64(n))
	return n, err
}

type entry struct {
	ch        *channel.Channel
	transport *Transport
}

// Collector is a prometheus.Collector reporting, per live channel:
// connected (1/0), bytes sent, and bytes received, labeled by remote
// address and (once known) datapath id. It follows the same
// Add/Remove-under-lock, Describe/Collect shape as
// runZeroInc-conniver's TCPInfoCollector, generalized from one fixed
// TCP-stat snapshot to this module's own per-channel counters.
type Collector struct {
	mu    sync.Mutex
	conns map[*channel.Channel]entry

	connectedDesc *prometheus.Desc
	bytesSentDesc *prometheus.Desc
	bytesRecvDesc *prometheus.Desc
	syncLatency   *prometheus.HistogramVec
}

// NewCollector builds a Collector. constLabels apply to every metric
// this process emits (e.g. {"instance": hostname}).
func NewCollector(constLabels prometheus.Labels) *Collector {
	labels := []string{"remote", "datapath"}
	return &Collector{
		conns:         make(map[*channel.Channel]entry),
		connectedDesc: prometheus.NewDesc("ofchannel_channel_connected", "1 if the channel is open, 0 once closed.", labels, constLabels),
		bytesSentDesc: prometheus.NewDesc("ofchannel_channel_bytes_sent_total", "Bytes written to the transport.", labels, constLabels),
		bytesRecvDesc: prometheus.NewDesc("ofchannel_channel_bytes_received_total", "Bytes read from the transport.", labels, constLabels),
		syncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "ofchannel_sync_call_seconds",
			Help:        "Latency of a synchronous request/reply call (Echo, Feature, Barrier, Single, Multi).",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"call"}),
	}
}

// Add registers ch for metrics reporting. xport must be the
// *Transport passed to channel.New for ch.
func (c *Collector) Add(ch *channel.Channel, xport *Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[ch] = entry{ch: ch, transport: xport}
}

// Remove stops reporting ch.
func (c *Collector) Remove(ch *channel.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, ch)
}

// ObserveSyncCall records how long a named sync call (e.g. "echo",
// "barrier") took. Callers time their own ch.Echo/ch.Barrier/etc.
// invocations and report the result here; the channel package itself
// stays free of a metrics import.
func (c *Collector) ObserveSyncCall(call string, d time.Duration) {
	c.syncLatency.WithLabelValues(call).Observe(d.Seconds())
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.connectedDesc
	descs <- c.bytesSentDesc
	descs <- c.bytesRecvDesc
	c.syncLatency.Describe(descs)
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	entries := make([]entry, 0, len(c.conns))
	for _, e := range c.conns {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	for _, e := range entries {
		remote := ""
		if addr := e.ch.RemoteAddr(); addr != nil {
			remote = addr.String()
		}
		datapath := "unknown"
		if dp, ok := e.ch.DatapathID(); ok {
			datapath = formatDatapath(dp)
		}
		labels := []string{remote, datapath}

		connected := 0.0
		select {
		case <-e.ch.Done():
		default:
			connected = 1.0
		}

		metrics <- prometheus.MustNewConstMetric(c.connectedDesc, prometheus.GaugeValue, connected, labels...)
		metrics <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(e.transport.sent.Load()), labels...)
		metrics <- prometheus.MustNewConstMetric(c.bytesRecvDesc, prometheus.CounterValue, float64(e.transport.recv.Load()), labels...)
	}
	c.syncLatency.Collect(metrics)
}
