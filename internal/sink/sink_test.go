package sink

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"camclip/internal/logging"
	"camclip/internal/metrics"
	"camclip/internal/naming"
	"camclip/internal/storage"
	"camclip/pkg/models"
)

func testMeta(t *testing.T, name string, start time.Time) *models.ClipMetadata {
	t.Helper()
	return models.NewClipMetadata(name, start, start.Add(2*time.Second), 40, 20, 640, 480)
}

func testClip(name string) *models.Clip {
	return &models.Clip{FileName: name, Data: []byte("fake mp4 " + name), ContentType: "video/mp4"}
}

func TestLocalFileSinkAppendsRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	metaPath := filepath.Join(dir, DefaultMetadataFile)
	s := NewLocalFileSink(store, LocalOptions{MetadataPath: metaPath}, logging.Discard(), nil)

	start := time.Date(2024, 5, 28, 8, 36, 37, 0, time.Local)
	names := []string{"2024_05_28_08_36_37_000000.mp4", "2024_05_28_08_36_39_000000.mp4"}
	for i, n := range names {
		if err := s.Emit(context.Background(), testClip(n), testMeta(t, n, start.Add(time.Duration(i)*2*time.Second))); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}

	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			t.Fatalf("clip %s not stored: %v", n, err)
		}
		if string(data) != "fake mp4 "+n {
			t.Errorf("clip %s content = %q", n, data)
		}
	}

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("metadata log has %d lines, want 2", len(lines))
	}
	want := `{"file_name":"2024_05_28_08_36_37_000000.mp4","start_time":"2024-05-28 08:36:37.000000",` +
		`"end_time":"2024-05-28 08:36:39.000000","duration":2,"frame_count":40,"fps":20,"width":640,"height":480}`
	if lines[0] != want {
		t.Errorf("first record =\n%s\nwant\n%s", lines[0], want)
	}

	records, err := ReadMetadataLog(metaPath)
	if err != nil {
		t.Fatalf("ReadMetadataLog() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("read %d records, want 2", len(records))
	}
	if records[1].FileName != names[1] || records[1].FrameCount != 40 || records[1].Duration != 2 {
		t.Errorf("unexpected record %+v", records[1])
	}
	if !records[0].StartTime.Equal(start) {
		t.Errorf("start time = %v, want %v", records[0].StartTime, start)
	}
}

func TestLocalFileSinkRetention(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New(prometheus.NewRegistry())
	s := NewLocalFileSink(store, LocalOptions{MetadataPath: filepath.Join(dir, "metadata.json"), MaxClips: 2}, logging.Discard(), m)

	start := time.Date(2024, 5, 28, 8, 0, 0, 0, time.Local)
	var names []string
	for i := 0; i < 4; i++ {
		n := start.Add(time.Duration(i) * time.Minute).Format("2006_01_02_15_04_05_000000") + ".mp4"
		names = append(names, n)
		if err := s.Emit(context.Background(), testClip(n), testMeta(t, n, start)); err != nil {
			t.Fatal(err)
		}
		// Distinct modification times keep the age order unambiguous
		mt := time.Now().Add(time.Duration(i-10) * time.Second)
		os.Chtimes(filepath.Join(dir, n), mt, mt)
	}

	clips, err := store.List(context.Background(), "mp4")
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 2 {
		t.Fatalf("kept %d clips, want 2", len(clips))
	}
	if clips[0].Name != names[2] || clips[1].Name != names[3] {
		t.Errorf("kept %v, want the two newest", clips)
	}
	if got := testutil.ToFloat64(m.ClipsStored); got != 2 {
		t.Errorf("ClipsStored = %v, want 2", got)
	}

	// The metadata log is never trimmed
	records, err := ReadMetadataLog(filepath.Join(dir, "metadata.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Errorf("metadata log has %d records, want 4", len(records))
	}
}

func TestScanMetadataLogReportsBadLines(t *testing.T) {
	log := strings.Join([]string{
		`{"file_name":"a.mp4","start_time":"2024-05-28 08:00:00.000000","end_time":"2024-05-28 08:00:02.000000","duration":2,"frame_count":1,"fps":20}`,
		``,
		`not json`,
		`{"file_name":"b.mp4","start_time":"2024-05-28 08:00:02.000000","end_time":"2024-05-28 08:00:04.000000","duration":2,"frame_count":1,"fps":20}`,
	}, "\n")

	var good []string
	var bad []int
	err := ScanMetadataLog(strings.NewReader(log), func(line int, meta *models.ClipMetadata, err error) error {
		if err != nil {
			bad = append(bad, line)
			return nil
		}
		good = append(good, meta.FileName)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanMetadataLog() error = %v", err)
	}
	if len(good) != 2 || good[0] != "a.mp4" || good[1] != "b.mp4" {
		t.Errorf("good records = %v", good)
	}
	if len(bad) != 1 || bad[0] != 3 {
		t.Errorf("bad lines = %v, want [3]", bad)
	}

	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := os.WriteFile(path, []byte(log), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadMetadataLog(path); err == nil {
		t.Error("ReadMetadataLog() should fail on a malformed line")
	}
}

type capturedRequest struct {
	header http.Header
	body   []byte
	user   string
	pass   string
	auth   bool
}

func newIngestServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, ok := r.BasicAuth()
		mu.Lock()
		reqs = append(reqs, capturedRequest{header: r.Header.Clone(), body: body, user: user, pass: pass, auth: ok})
		mu.Unlock()
		w.WriteHeader(status)
		if status >= 300 {
			w.Write([]byte("table locked"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func connFor(t *testing.T, srv *httptest.Server, creds string) naming.Conn {
	t.Helper()
	conn, err := naming.ParseConn(creds + strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func TestRemoteSinkPostsMetadata(t *testing.T) {
	srv, reqs := newIngestServer(t, http.StatusOK)
	s := NewRemoteSink(RemoteOptions{
		Conn:   connFor(t, srv, "alice:secret@"),
		Target: Target{DBMS: "camdb"},
		Topic:  "frontdoor",
	}, logging.Discard())

	name := "2024_05_28_08_36_37_000000.mp4"
	start := time.Date(2024, 5, 28, 8, 36, 37, 0, time.Local)
	if err := s.Emit(context.Background(), testClip(name), testMeta(t, name, start)); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	if len(*reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(*reqs))
	}
	req := (*reqs)[0]

	for header, want := range map[string]string{
		"Content-Type": "application/json",
		"command":      "data",
		"topic":        "frontdoor",
		"User-Agent":   "AnyLog/1.23",
	} {
		if got := req.header.Get(header); got != want {
			t.Errorf("header %s = %q, want %q", header, got, want)
		}
	}
	if !req.auth || req.user != "alice" || req.pass != "secret" {
		t.Errorf("basic auth = %v %q %q", req.auth, req.user, req.pass)
	}

	var payload map[string]any
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["dbms"] != "camdb" {
		t.Errorf("dbms = %v", payload["dbms"])
	}
	if payload["table"] != "2024_05_28_08_36_37_000000_mp4" {
		t.Errorf("table = %v", payload["table"])
	}
	if payload["file_name"] != name {
		t.Errorf("file_name = %v", payload["file_name"])
	}
	readings, ok := payload["readings"].(map[string]any)
	if !ok {
		t.Fatalf("readings missing: %s", req.body)
	}
	if readings["start_time"] != "2024-05-28 08:36:37.000000" || readings["duration"] != 2.0 {
		t.Errorf("readings = %v", readings)
	}
	if _, ok := payload["raw_video"]; ok {
		t.Error("metadata mode must not inline the clip")
	}
}

func TestRemoteSinkBase64(t *testing.T) {
	srv, reqs := newIngestServer(t, http.StatusCreated)
	s := NewRemoteSink(RemoteOptions{
		Conn:   connFor(t, srv, ""),
		Target: Target{Table: "videos"},
		Mode:   PayloadBase64,
	}, logging.Discard())

	clip := testClip("a.mp4")
	if err := s.Emit(context.Background(), clip, testMeta(t, "a.mp4", time.Now())); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	req := (*reqs)[0]
	if req.auth {
		t.Error("no credentials configured, auth header must be absent")
	}
	if req.header.Get("topic") != DefaultTopic {
		t.Errorf("topic = %q, want default", req.header.Get("topic"))
	}

	var payload models.RemotePayload
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Table != "videos" || payload.DBMS != DefaultDBMS {
		t.Errorf("target = %s.%s", payload.DBMS, payload.Table)
	}
	raw, err := base64.StdEncoding.DecodeString(payload.RawVideo)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, clip.Data) {
		t.Errorf("raw_video decodes to %q", raw)
	}
}

func TestRemoteSinkFailures(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv, _ := newIngestServer(t, http.StatusInternalServerError)
		s := NewRemoteSink(RemoteOptions{Conn: connFor(t, srv, "")}, logging.Discard())
		err := s.Emit(context.Background(), nil, testMeta(t, "a.mp4", time.Now()))
		if err == nil || !strings.Contains(err.Error(), "500") {
			t.Errorf("Emit() error = %v, want status error", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv, _ := newIngestServer(t, http.StatusOK)
		conn := connFor(t, srv, "")
		srv.Close()

		s := NewRemoteSink(RemoteOptions{Conn: conn, Timeout: time.Second}, logging.Discard())
		if err := s.Emit(context.Background(), nil, testMeta(t, "a.mp4", time.Now())); err == nil {
			t.Error("expected error for closed endpoint")
		}
	})
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeMQTTClient implements the parts of mqtt.Client the sink uses
type fakeMQTTClient struct {
	mqtt.Client

	connected  bool
	publishErr error

	mu        sync.Mutex
	published map[string][][]byte
	qos       byte
}

func (c *fakeMQTTClient) IsConnected() bool      { return c.connected }
func (c *fakeMQTTClient) IsConnectionOpen() bool { return c.connected }
func (c *fakeMQTTClient) Disconnect(uint)        { c.connected = false }

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = make(map[string][][]byte)
	}
	c.published[topic] = append(c.published[topic], payload.([]byte))
	c.qos = qos
	return newFakeToken(c.publishErr)
}

func TestMQTTSinkPublishes(t *testing.T) {
	client := &fakeMQTTClient{connected: true}
	s := newMQTTSink(client, MQTTOptions{Topic: "cams/front", QoS: 1}, logging.Discard())

	if err := s.Emit(context.Background(), testClip("a.mp4"), testMeta(t, "a.mp4", time.Now())); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	msgs := client.published["cams/front"]
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if client.qos != 1 {
		t.Errorf("qos = %d, want 1", client.qos)
	}
	var payload models.RemotePayload
	if err := json.Unmarshal(msgs[0], &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Table != "a_mp4" || payload.DBMS != DefaultDBMS {
		t.Errorf("payload target = %s.%s", payload.DBMS, payload.Table)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Emit(context.Background(), nil, testMeta(t, "b.mp4", time.Now())); err == nil {
		t.Error("Emit() after Close should fail")
	}
}

func TestMQTTSinkPublishError(t *testing.T) {
	client := &fakeMQTTClient{connected: true, publishErr: errors.New("not authorized")}
	s := newMQTTSink(client, MQTTOptions{}, logging.Discard())

	err := s.Emit(context.Background(), nil, testMeta(t, "a.mp4", time.Now()))
	if err == nil || !strings.Contains(err.Error(), "not authorized") {
		t.Errorf("Emit() error = %v", err)
	}
}

type stubSink struct {
	name  string
	err   error
	calls int
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Emit(ctx context.Context, clip *models.Clip, meta *models.ClipMetadata) error {
	s.calls++
	return s.err
}

func TestMultiAttemptsEverySink(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	failing := &stubSink{name: "remote", err: errors.New("endpoint down")}
	local := &stubSink{name: "local"}

	multi := NewMulti(Instrument(failing, m, logging.Discard()), Instrument(local, m, logging.Discard()))
	if multi.Name() != "remote+local" {
		t.Errorf("Name() = %q", multi.Name())
	}

	err := multi.Emit(context.Background(), nil, testMeta(t, "a.mp4", time.Now()))
	if err == nil {
		t.Fatal("expected joined error")
	}
	if failing.calls != 1 || local.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", failing.calls, local.calls)
	}

	var sinkErr *Error
	if !errors.As(err, &sinkErr) || sinkErr.Sink != "remote" {
		t.Errorf("error %v does not carry the sink name", err)
	}
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("remote")); got != 1 {
		t.Errorf("remote errors = %v", got)
	}
	if got := testutil.ToFloat64(m.SinkWrites.WithLabelValues("local")); got != 1 {
		t.Errorf("local writes = %v", got)
	}
}

func TestParsePayloadMode(t *testing.T) {
	for in, want := range map[string]PayloadMode{"": PayloadMetadata, "metadata": PayloadMetadata, "base64": PayloadBase64} {
		got, err := ParsePayloadMode(in)
		if err != nil || got != want {
			t.Errorf("ParsePayloadMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePayloadMode("frames"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
