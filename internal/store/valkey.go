package store

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyStore persists blobs in a Valkey/Redis-compatible server using a
// minimal hand-rolled RESP client. Connections are per-operation; the
// engine issues a handful of commands per poll cycle, so pooling is not
// worth the complexity.
type ValkeyStore struct {
	cfg ValkeyConfig
}

// ValkeyConfig holds connection parameters for the Valkey server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// NewValkeyStore creates a store using the supplied configuration. It
// pings the target to fail fast when credentials or connectivity are wrong.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	applyValkeyDefaults(&cfg)
	s := &ValkeyStore{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Save stores the blob under key with no expiry.
func (s *ValkeyStore) Save(ctx context.Context, key string, blob []byte) error {
	return s.withConn(ctx, func(rc *respConn) error {
		if err := rc.writeCommand("SET", []byte(key), blob); err != nil {
			return err
		}
		reply, err := rc.readReply()
		if err != nil {
			return err
		}
		if reply.kind != '+' || string(reply.data) != "OK" {
			return fmt.Errorf("unexpected SET response: %s", reply.data)
		}
		return nil
	})
}

// Load fetches the blob by key, returning ErrNotFound when absent.
func (s *ValkeyStore) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.withConn(ctx, func(rc *respConn) error {
		if err := rc.writeCommand("GET", []byte(key)); err != nil {
			return err
		}
		reply, err := rc.readReply()
		if err != nil {
			return err
		}
		switch reply.kind {
		case '_':
			return ErrNotFound
		case '$':
			blob = reply.data
			return nil
		default:
			return fmt.Errorf("unexpected GET reply type %q", reply.kind)
		}
	})
	return blob, err
}

// Delete removes the key.
func (s *ValkeyStore) Delete(ctx context.Context, key string) error {
	return s.withConn(ctx, func(rc *respConn) error {
		if err := rc.writeCommand("DEL", []byte(key)); err != nil {
			return err
		}
		_, err := rc.readReply()
		return err
	})
}

// Close is a no-op; connections are per-operation.
func (s *ValkeyStore) Close() error { return nil }

// Ping round-trips a PING command, verifying connectivity and credentials.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, func(rc *respConn) error {
		if err := rc.writeCommand("PING"); err != nil {
			return err
		}
		reply, err := rc.readReply()
		if err != nil {
			return err
		}
		if reply.kind != '+' || string(reply.data) != "PONG" {
			return fmt.Errorf("unexpected PING response: %s", reply.data)
		}
		return nil
	})
}

func (s *ValkeyStore) withConn(ctx context.Context, fn func(*respConn) error) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rc, err := s.dial(ctx)
		if err == nil {
			err = s.handshake(rc)
			if err == nil {
				err = fn(rc)
			}
			rc.close()
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == s.cfg.MaxRetries-1 {
			return err
		}
		time.Sleep(time.Duration(1<<attempt) * 25 * time.Millisecond)
	}
	return lastErr
}

func (s *ValkeyStore) dial(ctx context.Context) (*respConn, error) {
	dialer := net.Dialer{Timeout: dialDeadline(ctx, s.cfg.DialTimeout)}
	var (
		conn net.Conn
		err  error
	)
	if s.cfg.TLS {
		host, _, splitErr := net.SplitHostPort(s.cfg.Addr)
		if splitErr != nil {
			host = s.cfg.Addr
		}
		conn, err = tls.DialWithDialer(&dialer, "tcp", s.cfg.Addr,
			&tls.Config{MinVersion: tls.VersionTLS12, ServerName: host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return &respConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		readTimeout:  s.cfg.ReadTimeout,
		writeTimeout: s.cfg.WriteTimeout,
	}, nil
}

func (s *ValkeyStore) handshake(rc *respConn) error {
	if s.cfg.Password != "" {
		args := [][]byte{}
		if s.cfg.Username != "" {
			args = append(args, []byte(s.cfg.Username))
		}
		args = append(args, []byte(s.cfg.Password))
		if err := rc.writeCommand("AUTH", args...); err != nil {
			return err
		}
		reply, err := rc.readReply()
		if err != nil {
			return err
		}
		if reply.kind != '+' || !strings.EqualFold(string(reply.data), "OK") {
			return fmt.Errorf("auth failed: %s", reply.data)
		}
	}
	if s.cfg.DB > 0 {
		if err := rc.writeCommand("SELECT", []byte(strconv.Itoa(s.cfg.DB))); err != nil {
			return err
		}
		reply, err := rc.readReply()
		if err != nil {
			return err
		}
		if reply.kind != '+' || !strings.EqualFold(string(reply.data), "OK") {
			return fmt.Errorf("select failed: %s", reply.data)
		}
	}
	return nil
}

// respReply holds a decoded RESP reply. kind mirrors the RESP type prefix;
// '_' stands in for the nil bulk string.
type respReply struct {
	kind byte
	data []byte
}

// respConn wraps a network connection with RESP encode/decode helpers.
type respConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (rc *respConn) close() {
	_ = rc.conn.Close()
}

func (rc *respConn) writeCommand(command string, args ...[]byte) error {
	if err := rc.conn.SetWriteDeadline(time.Now().Add(rc.writeTimeout)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(rc.writer, "*%d\r\n", len(args)+1); err != nil {
		return err
	}
	parts := append([][]byte{[]byte(command)}, args...)
	for _, part := range parts {
		if _, err := fmt.Fprintf(rc.writer, "$%d\r\n", len(part)); err != nil {
			return err
		}
		if _, err := rc.writer.Write(part); err != nil {
			return err
		}
		if _, err := rc.writer.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return rc.writer.Flush()
}

func (rc *respConn) readReply() (respReply, error) {
	if err := rc.conn.SetReadDeadline(time.Now().Add(rc.readTimeout)); err != nil {
		return respReply{}, err
	}
	prefix, err := rc.reader.ReadByte()
	if err != nil {
		return respReply{}, err
	}
	switch prefix {
	case '+', ':':
		line, err := rc.readLine()
		return respReply{kind: prefix, data: line}, err
	case '-':
		line, err := rc.readLine()
		if err != nil {
			return respReply{}, err
		}
		return respReply{}, errors.New(string(line))
	case '$':
		line, err := rc.readLine()
		if err != nil {
			return respReply{}, err
		}
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return respReply{}, err
		}
		if size < 0 {
			return respReply{kind: '_'}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(rc.reader, buf); err != nil {
			return respReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return respReply{}, errors.New("invalid bulk string termination")
		}
		return respReply{kind: '$', data: buf[:size]}, nil
	default:
		return respReply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (rc *respConn) readLine() ([]byte, error) {
	line, err := rc.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func applyValkeyDefaults(cfg *ValkeyConfig) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

func dialDeadline(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Millisecond
		}
		if d == 0 || remaining < d {
			return remaining
		}
	}
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func retryable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
