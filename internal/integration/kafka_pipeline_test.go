//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/firms-detection-etl/internal/adapter/firms"
	"github.com/couchcryptid/firms-detection-etl/internal/adapter/kafka"
	"github.com/couchcryptid/firms-detection-etl/internal/config"
	"github.com/couchcryptid/firms-detection-etl/internal/domain"
	"github.com/couchcryptid/firms-detection-etl/internal/observability"
	"github.com/couchcryptid/firms-detection-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// resultMessage holds a deserialized message read from the sink topic.
type resultMessage struct {
	Key     string
	Headers map[string]string
	Body    resultBody
}

type resultBody struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Features  []struct {
		Properties map[string]any `json:"properties"`
	} `json:"features"`
	Centroid struct {
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
		Fallback bool    `json:"fallback"`
	} `json:"centroid"`
}

// readResult reads a single message from the sink consumer and deserializes it.
func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) resultMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var body resultBody
	require.NoError(t, json.Unmarshal(msg.Value, &body), "unmarshal sink message")

	return resultMessage{Key: string(msg.Key), Headers: headers, Body: body}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func freezeDomainClock(t *testing.T, at time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor) and
// kafka.Writer (Loader) correctly round-trip a message through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := []byte(`{"product":"VIIRS_SNPP_NRT","country":"AUS","days":2}`)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("req-1"), Value: payload}))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	require.NoError(t, reader.CheckReadiness(ctx))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	var batch []domain.RawEvent
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("req-1"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	out := domain.OutputEvent{
		Key:     []byte("req-1"),
		Value:   []byte(`{"type":"FeatureCollection","features":[],"request_id":"req-1","centroid":{"lat":1,"lon":2,"fallback":true}}`),
		Headers: map[string]string{"detection_count": "0"},
	}
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{out}))

	rm := readResult(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "req-1", rm.Key)
	assert.Equal(t, "application/geo+json", rm.Headers["content_type"])
	assert.Equal(t, "0", rm.Headers["detection_count"])
	assert.True(t, rm.Body.Centroid.Fallback)
}

// TestPipelineEndToEnd wires Reader, QueryTransformer (Builder over the FIRMS
// client) and Writer against real Kafka and a fake FIRMS server.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	freezeDomainClock(t, time.Date(2024, time.January, 2, 20, 0, 0, 0, time.UTC))

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	const mapKey = "0123456789abcdef0123456789abcdef"
	upstream := startFIRMS(t, map[string]string{
		"/api/country/csv/" + mapKey + "/VIIRS_SNPP_NRT/AUS/2": viirsCSV,
	})

	metrics := observability.NewMetricsForTesting()
	client := firms.NewClient(upstream.URL, mapKey, 5*time.Second, discardLogger(), metrics)
	builder := pipeline.NewBuilder(client, pipeline.BuilderConfig{CacheSize: 16}, discardLogger(), metrics)
	transformer := pipeline.NewTransformer(client, builder, discardLogger())

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("first"), Value: []byte(`{"product":"viirs_snpp_nrt","country":"aus","days":2}`)},
		kafkago.Message{Key: []byte("second"), Value: []byte(`{"product":"VIIRS_SNPP_NRT","country":"AUS","days":2}`)},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := map[string]resultMessage{}
	for len(received) < 2 {
		rm := readResult(ctx, t, consumer)
		received[rm.Key] = rm
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	for _, key := range []string{"first", "second"} {
		rm, ok := received[key]
		require.True(t, ok, "missing result %s", key)

		assert.Equal(t, key, rm.Body.RequestID)
		assert.Equal(t, "FeatureCollection", rm.Body.Type)
		require.Len(t, rm.Body.Features, 2, "low-confidence row must be dropped")
		assert.Equal(t, "darkred", rm.Body.Features[0].Properties["marker_color"])
		assert.Equal(t, "red", rm.Body.Features[1].Properties["marker_color"])
		assert.InDelta(t, -33.55, rm.Body.Centroid.Lat, 1e-9)
		assert.InDelta(t, 150.8, rm.Body.Centroid.Lon, 1e-9)
		assert.Equal(t, "2", rm.Headers["detection_count"])
	}

	// Both requests resolve to the same source, so FIRMS is fetched once.
	assert.Equal(t, 1, builder.Cached())
	assert.NoError(t, p.CheckReadiness(ctx))
}

// TestPipelineTransformError verifies that bad requests are skipped and the
// pipeline keeps processing valid ones.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	freezeDomainClock(t, time.Date(2024, time.January, 2, 20, 0, 0, 0, time.UTC))

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	upstream := startFIRMS(t, map[string]string{"/exports/aus.csv": viirsCSV})

	metrics := observability.NewMetricsForTesting()
	client := firms.NewClient(upstream.URL, "", 5*time.Second, discardLogger(), metrics)
	builder := pipeline.NewBuilder(client, pipeline.BuilderConfig{CacheSize: 16}, discardLogger(), metrics)
	transformer := pipeline.NewTransformer(client, builder, discardLogger())

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("poison"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("upstream-down"), Value: []byte(`{"source":"` + upstream.URL + `/exports/missing.csv"}`)},
		kafkago.Message{Key: []byte("good"), Value: []byte(`{"source":"` + upstream.URL + `/exports/aus.csv"}`)},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50, pipeline.WithConcurrency(3))

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	rm := readResult(ctx, t, consumer)
	assert.Equal(t, "good", rm.Key)
	assert.Len(t, rm.Body.Features, 2)

	// Verify no second message arrives (the failed requests were skipped).
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
