package naming

import (
	"strings"
	"testing"
	"time"
)

func TestClipFileName(t *testing.T) {
	start := time.Date(2024, 5, 28, 8, 36, 37, 123456789, time.UTC)

	tests := []struct {
		name   string
		prefix string
		ext    string
		want   string
	}{
		{name: "no prefix", ext: "mp4", want: "2024_05_28_08_36_37_123456.mp4"},
		{name: "dotted ext", ext: ".mp4", want: "2024_05_28_08_36_37_123456.mp4"},
		{name: "prefix", prefix: "livefeed.cam0", ext: "mp4", want: "livefeed.cam0_2024_05_28_08_36_37_123456.mp4"},
		{name: "no ext", want: "2024_05_28_08_36_37_123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClipFileName(tt.prefix, start, tt.ext); got != tt.want {
				t.Errorf("ClipFileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClipFileNameWithinOneSecond(t *testing.T) {
	start := time.Date(2024, 5, 28, 8, 36, 37, 0, time.UTC)

	seen := map[string]bool{}
	for i := range 4 {
		name := ClipFileName("", start.Add(time.Duration(i)*250*time.Millisecond), "mp4")
		if seen[name] {
			t.Fatalf("duplicate clip name %q", name)
		}
		seen[name] = true
	}
	if !seen["2024_05_28_08_36_37_000000.mp4"] || !seen["2024_05_28_08_36_37_750000.mp4"] {
		t.Errorf("names = %v", seen)
	}
}

func TestTableName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "2024_05_28_08_36_37_000000.mp4", want: "2024_05_28_08_36_37_000000_mp4"},
		{in: "/var/blobs/video67A.mp4", want: "video67A_mp4"},
		{in: "a.b.c", want: "a_b_c"},
		{in: "plain", want: "plain"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := TableName(tt.in); got != tt.want {
			t.Errorf("TableName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseConn(t *testing.T) {
	tests := []struct {
		name    string
		conn    string
		want    Conn
		wantErr bool
	}{
		{name: "host port", conn: "10.0.0.1:32149", want: Conn{Host: "10.0.0.1", Port: 32149}},
		{name: "with auth", conn: "admin:secret@10.0.0.1:32149", want: Conn{Host: "10.0.0.1", Port: 32149, User: "admin", Password: "secret"}},
		{name: "user only", conn: "admin@localhost:80", want: Conn{Host: "localhost", Port: 80, User: "admin"}},
		{name: "empty", conn: "", wantErr: true},
		{name: "missing port", conn: "localhost", wantErr: true},
		{name: "bad port", conn: "localhost:http", wantErr: true},
		{name: "port out of range", conn: "localhost:70000", wantErr: true},
		{name: "empty host", conn: ":8080", wantErr: true},
		{name: "empty user", conn: ":pw@localhost:8080", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConn(tt.conn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseConn() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseConn() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConnURL(t *testing.T) {
	c := Conn{Host: "example.com", Port: 8080}
	if got := c.URL(); got != "http://example.com:8080" {
		t.Errorf("URL() = %q", got)
	}
	if c.HasAuth() {
		t.Error("HasAuth() should be false without user")
	}
}

func TestParseConnErrorHidesPassword(t *testing.T) {
	for _, conn := range []string{"bob:hunter2@host", "bob:hunter2@host:http", ":hunter2@host:1"} {
		_, err := ParseConn(conn)
		if err == nil {
			t.Fatalf("ParseConn(%q) succeeded", conn)
		}
		if strings.Contains(err.Error(), "hunter2") {
			t.Errorf("error leaks the password: %v", err)
		}
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "bob:hunter2@host:1", want: "bob:***@host:1"},
		{in: "bob@host:1", want: "bob:***@host:1"},
		{in: "host:1", want: "host:1"},
	}

	for _, tt := range tests {
		if got := Redact(tt.in); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
