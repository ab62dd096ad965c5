// Package connstring parses laura:// connection strings into the
// options the remote driver understands.
package connstring

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidConnString is returned when the connection string is invalid
	ErrInvalidConnString = errors.New("invalid connection string")
	// ErrInvalidScheme is returned when the connection string scheme is not supported
	ErrInvalidScheme = errors.New("invalid scheme: must be 'laura://'")
	// ErrNoHost is returned when no host is specified
	ErrNoHost = errors.New("no host specified in connection string")
)

// ConnString represents a parsed connection string
type ConnString struct {
	// Host is the server hostname or IP address
	Host string
	// Port is the server port
	Port int
	// Database is the optional database name
	Database string
	// Options contains connection options
	Options Options
}

// Options contains connection string options
type Options struct {
	// Timeout is the per-request timeout
	Timeout time.Duration
	// ConnectTimeout bounds the initial health check
	ConnectTimeout time.Duration
	// MaxIdleConns caps idle connections in the pool
	MaxIdleConns int
	// MaxConnsPerHost caps connections per host
	MaxConnsPerHost int
	// Compression enables gzip request compression
	Compression bool
	// CompressionThreshold is the request body size, in bytes, above
	// which bodies are compressed
	CompressionThreshold int

	// Authentication
	Username string
	Password string
}

// DefaultOptions returns default connection options
func DefaultOptions() Options {
	return Options{
		Timeout:              30 * time.Second,
		ConnectTimeout:       10 * time.Second,
		MaxIdleConns:         10,
		MaxConnsPerHost:      10,
		Compression:          true,
		CompressionThreshold: 1024,
	}
}

// Parse parses a connection string.
// Supported format:
//   - laura://[username:password@]host[:port][/database]?options
func Parse(connStr string) (*ConnString, error) {
	if connStr == "" {
		return nil, fmt.Errorf("%w: empty connection string", ErrInvalidConnString)
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConnString, err)
	}

	if strings.ToLower(u.Scheme) != "laura" {
		return nil, ErrInvalidScheme
	}

	cs := &ConnString{
		Options: DefaultOptions(),
	}

	if u.User != nil {
		cs.Options.Username = u.User.Username()
		if password, ok := u.User.Password(); ok {
			cs.Options.Password = password
		}
	}

	if u.Host == "" {
		return nil, ErrNoHost
	}

	host, portStr, hasPort := strings.Cut(u.Host, ":")
	cs.Host = host
	cs.Port = 8080
	if hasPort {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid port '%s'", ErrInvalidConnString, portStr)
		}
		cs.Port = port
	}

	if u.Path != "" && u.Path != "/" {
		cs.Database = strings.TrimPrefix(u.Path, "/")
	}

	if u.RawQuery != "" {
		if err := parseOptions(&cs.Options, u.Query()); err != nil {
			return nil, err
		}
	}

	return cs, nil
}

// parseOptions parses query parameters into Options
func parseOptions(opts *Options, values url.Values) error {
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		val := vals[0] // use first value if multiple provided

		switch strings.ToLower(key) {
		case "timeout", "timeoutms":
			ms, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid timeout value: %v", err)
			}
			opts.Timeout = time.Duration(ms) * time.Millisecond

		case "connecttimeout", "connecttimeoutms":
			ms, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid connectTimeout value: %v", err)
			}
			opts.ConnectTimeout = time.Duration(ms) * time.Millisecond

		case "maxidleconns":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid maxIdleConns value: %v", err)
			}
			opts.MaxIdleConns = n

		case "maxconnsperhost":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid maxConnsPerHost value: %v", err)
			}
			opts.MaxConnsPerHost = n

		case "compression":
			opts.Compression = parseBool(val)

		case "compressionthreshold":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid compressionThreshold value: %v", err)
			}
			opts.CompressionThreshold = n
		}
	}

	return nil
}

// parseBool parses a boolean value from string
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}

// String returns the connection string representation
func (cs *ConnString) String() string {
	var sb strings.Builder

	sb.WriteString("laura://")

	if cs.Options.Username != "" {
		sb.WriteString(url.QueryEscape(cs.Options.Username))
		if cs.Options.Password != "" {
			sb.WriteString(":")
			sb.WriteString(url.QueryEscape(cs.Options.Password))
		}
		sb.WriteString("@")
	}

	sb.WriteString(cs.Host)
	sb.WriteString(":")
	sb.WriteString(strconv.Itoa(cs.Port))

	if cs.Database != "" {
		sb.WriteString("/")
		sb.WriteString(cs.Database)
	}

	return sb.String()
}

// HasAuthentication returns true if username is specified
func (cs *ConnString) HasAuthentication() bool {
	return cs.Options.Username != ""
}
