// Package naming holds the pure naming rules for clips, tables and remote
// connection strings.
package naming

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// clipTimeLayout renders YYYY_MM_DD_HH_MM_SS. Fractional seconds are only
// formatted after '.' or ',', so the microseconds are appended separately.
const clipTimeLayout = "2006_01_02_15_04_05"

// ClipFileName returns the file name of a clip starting at start.
// An empty prefix yields "2024_05_28_08_36_37_123456.mp4"; prefix "cam0"
// yields "cam0_2024_05_28_08_36_37_123456.mp4".
func ClipFileName(prefix string, start time.Time, ext string) string {
	name := fmt.Sprintf("%s_%06d", start.Format(clipTimeLayout), start.Nanosecond()/int(time.Microsecond))
	if prefix != "" {
		name = prefix + "_" + name
	}

	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// TableName derives the default table for a clip: the basename with every
// "." replaced by "_". "video.2024.mp4" becomes "video_2024_mp4".
func TableName(fileName string) string {
	if fileName == "" {
		return ""
	}
	return strings.ReplaceAll(filepath.Base(fileName), ".", "_")
}

// Conn is a parsed "[user:password@]host:port" connection string
type Conn struct {
	Host     string
	Port     int
	User     string
	Password string
}

// HasAuth reports whether basic auth credentials were supplied
func (c Conn) HasAuth() bool {
	return c.User != ""
}

// Address returns host:port
func (c Conn) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL returns the HTTP endpoint for the connection
func (c Conn) URL() string {
	return "http://" + c.Address()
}

// Redact hides the password of a connection string: "bob:pw@host:1"
// becomes "bob:***@host:1". Strings without credentials are returned as is.
func Redact(conn string) string {
	at := strings.LastIndex(conn, "@")
	if at < 0 {
		return conn
	}
	user, _, _ := strings.Cut(conn[:at], ":")
	return user + ":***" + conn[at:]
}

// ParseConn parses a "[user:password@]host:port" connection string. Errors
// quote the string with its password redacted.
func ParseConn(conn string) (Conn, error) {
	var c Conn

	conn = strings.TrimSpace(conn)
	if conn == "" {
		return c, fmt.Errorf("empty connection string")
	}

	hostPort := conn
	if at := strings.LastIndex(conn, "@"); at >= 0 {
		creds := conn[:at]
		hostPort = conn[at+1:]

		user, password, _ := strings.Cut(creds, ":")
		if user == "" {
			return c, fmt.Errorf("connection %q: empty user", Redact(conn))
		}
		c.User = user
		c.Password = password
	}

	colon := strings.LastIndex(hostPort, ":")
	if colon <= 0 {
		return c, fmt.Errorf("connection %q: expected host:port", Redact(conn))
	}

	port, err := strconv.Atoi(hostPort[colon+1:])
	if err != nil || port <= 0 || port > 65535 {
		return c, fmt.Errorf("connection %q: invalid port", Redact(conn))
	}

	c.Host = hostPort[:colon]
	c.Port = port
	return c, nil
}
