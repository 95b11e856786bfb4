package telemetry_test

import (
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/graphlower/internal/telemetry"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) SendEvent(category, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, category+"/"+payload)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := telemetry.NewPrometheusSink(reg)
	require.NoError(t, err)

	sink.SendEvent(telemetry.CategoryErrorCause, "onnx_Foo")
	sink.SendEvent(telemetry.CategoryErrorCause, "onnx_Foo")
	sink.SendEvent(telemetry.CategoryErrorCause, "onnx_Bar")

	assert.InDelta(t, 2, testutil.ToFloat64(sink.Counter().WithLabelValues("error_cause", "onnx_Foo")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(sink.Counter().WithLabelValues("error_cause", "onnx_Bar")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(sink.Counter()))

	_, err = telemetry.NewPrometheusSink(reg)
	assert.Error(t, err, "registering the collector twice must fail")
}

func TestLogSink(t *testing.T) {
	var lines []string
	logger := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{Verbosity: 1})

	telemetry.NewLogSink(logger).SendEvent(telemetry.CategoryErrorCause, "onnx_Foo")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"payload"="onnx_Foo"`)

	lines = nil
	quiet := funcr.New(func(_, args string) { lines = append(lines, args) }, funcr.Options{})
	telemetry.NewLogSink(quiet).SendEvent(telemetry.CategoryErrorCause, "onnx_Foo")
	assert.Empty(t, lines)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	telemetry.Multi(a, b).SendEvent("c", "p")
	assert.Equal(t, []string{"c/p"}, a.Events())
	assert.Equal(t, []string{"c/p"}, b.Events())
}

func TestMulti_PanickingSinkDoesNotStopOthers(t *testing.T) {
	after := &recorder{}
	broken := telemetry.SinkFunc(func(string, string) { panic("sink down") })

	telemetry.Multi(broken, after).SendEvent("c", "p")
	if got := after.Events(); len(got) != 1 || got[0] != "c/p" {
		t.Errorf("Expected [c/p] after a panicking sink, got %v", got)
	}
}

func TestAsync_DeliversBeforeClose(t *testing.T) {
	rec := &recorder{}
	a := telemetry.NewAsync(rec, 8, logr.Discard())
	a.SendEvent("c", "one")
	a.SendEvent("c", "two")
	require.NoError(t, a.Close())

	assert.Equal(t, []string{"c/one", "c/two"}, rec.Events())
	assert.Zero(t, a.Dropped())

	a.SendEvent("c", "late")
	assert.Equal(t, int64(1), a.Dropped())
	require.NoError(t, a.Close())
}

func TestAsync_DropsWhenFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	rec := &recorder{}
	var once sync.Once
	sink := telemetry.SinkFunc(func(category, payload string) {
		once.Do(func() {
			close(started)
			<-release
		})
		rec.SendEvent(category, payload)
	})

	a := telemetry.NewAsync(sink, 1, logr.Discard())
	a.SendEvent("c", "first")
	<-started
	a.SendEvent("c", "buffered")
	a.SendEvent("c", "dropped")
	close(release)
	require.NoError(t, a.Close())

	assert.Equal(t, []string{"c/first", "c/buffered"}, rec.Events())
	assert.Equal(t, int64(1), a.Dropped())
}

func TestAsync_SwallowsPanics(t *testing.T) {
	rec := &recorder{}
	sink := telemetry.SinkFunc(func(category, payload string) {
		if payload == "bad" {
			panic("sink failure")
		}
		rec.SendEvent(category, payload)
	})

	a := telemetry.NewAsync(sink, 4, logr.Discard())
	a.SendEvent("c", "bad")
	a.SendEvent("c", "good")
	require.NoError(t, a.Close())
	assert.Equal(t, []string{"c/good"}, rec.Events())
}
