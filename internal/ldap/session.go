package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Dialer opens a transport connection to server.
type Dialer func(ctx context.Context, server *ServerInfo, cfg *ConnectionConfig) (Conn, error)

// GSSAPIClientFactory creates the Kerberos client used for a GSSAPI bind.
type GSSAPIClientFactory func(cred *BindCredential) (ldap.GSSAPIClient, error)

// ldapConn adapts *ldap.Conn to Conn.
type ldapConn struct {
	*ldap.Conn
}

func (c *ldapConn) Close() error {
	c.Conn.Close()
	return nil
}

// DialLDAP dials server with go-ldap, bounded by the configured timeout and the context deadline.
func DialLDAP(ctx context.Context, server *ServerInfo, cfg *ConnectionConfig) (Conn, error) {
	timeout := boundedTimeout(ctx, cfg.Timeout)
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: timeout})}
	if server.UseTLS {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfigFor(cfg, server)))
	}

	conn, err := ldap.DialURL(server.URL(), opts...)
	if err != nil {
		return nil, err
	}

	return &ldapConn{Conn: conn}, nil
}

// tlsConfigFor returns the configured TLS settings with ServerName pinned to server.
func tlsConfigFor(cfg *ConnectionConfig, server *ServerInfo) *tls.Config {
	var tlsConfig *tls.Config
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = server.Host
	}
	return tlsConfig
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithDialer replaces the transport dialer.
func WithDialer(dial Dialer) SessionOption {
	return func(s *Session) {
		s.dial = dial
	}
}

// WithGSSAPIClientFactory replaces the Kerberos client constructor.
func WithGSSAPIClientFactory(factory GSSAPIClientFactory) SessionOption {
	return func(s *Session) {
		s.newGSSAPIClient = factory
	}
}

// Session owns one authenticated directory connection for the lifetime of a
// single logical operation. A Session is not safe for concurrent use and is
// never shared between requests.
type Session struct {
	config          *ConnectionConfig
	dial            Dialer
	newGSSAPIClient GSSAPIClientFactory

	conn    Conn
	server  *ServerInfo
	boundAs string
}

// NewSession creates an unopened session.
func NewSession(config *ConnectionConfig, opts ...SessionOption) *Session {
	if config == nil {
		config = DefaultConfig()
	}

	cfg := *config
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}

	s := &Session{
		config:          &cfg,
		dial:            DialLDAP,
		newGSSAPIClient: newPasswordGSSAPIClient,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Connected reports whether the session holds a live, bound connection.
func (s *Session) Connected() bool {
	return s.conn != nil
}

// BoundAs returns the identity the session authenticated as.
func (s *Session) BoundAs() string {
	return s.boundAs
}

// Open dials server and binds as cred. Transport failures are retried with
// exponential backoff; bind failures are returned immediately. Every failure
// is a *ConnectionError.
func (s *Session) Open(ctx context.Context, server *ServerInfo, cred *BindCredential) error {
	if s.conn != nil {
		return fmt.Errorf("session is already open to %s", s.server.Host)
	}

	if server == nil || server.Host == "" {
		return NewConnectionError("", ConnectReasonTransport, errors.New("server host is required"))
	}

	if cred == nil {
		return NewConnectionError(server.Host, ConnectReasonAuthentication, errors.New("credentials are required"))
	}

	fields := map[string]any{
		"server":      server.URL(),
		"username":    cred.Username,
		"auth_method": cred.Method.String(),
	}
	LogConnectionEvent(ctx, "connection_attempt", fields)

	conn, err := s.dialWithRetry(ctx, server)
	if err != nil {
		LogConnectionEvent(ctx, "connection_failed", withError(fields, err))
		return NewConnectionError(server.Host, ConnectReasonTransport, err)
	}

	if err := s.authenticate(ctx, conn, server, cred); err != nil {
		_ = conn.Close()

		reason := ConnectReasonAuthentication
		if GetErrorCategory(err) == ErrorCategoryConnection ||
			errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			reason = ConnectReasonTransport
		}

		LogConnectionEvent(ctx, "authentication_failed", withError(fields, err))
		return NewConnectionError(server.Host, reason, err)
	}

	s.conn = conn
	s.server = server
	s.boundAs = cred.Username

	LogConnectionEvent(ctx, "connection_established", fields)
	return nil
}

// Close releases the connection. It is safe to call on a session that was
// never opened, failed to open, or is already closed.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	s.boundAs = ""

	return err
}

// dialWithRetry dials and, when configured, upgrades with StartTLS.
func (s *Session) dialWithRetry(ctx context.Context, server *ServerInfo) (Conn, error) {
	var conn Conn

	err := s.withRetry(ctx, func() error {
		c, err := s.dial(ctx, server, s.config)
		if err != nil {
			return err
		}

		if s.config.StartTLS && !server.UseTLS {
			if err := c.StartTLS(tlsConfigFor(s.config, server)); err != nil {
				_ = c.Close()
				return fmt.Errorf("StartTLS failed: %w", err)
			}
		}

		conn = c
		return nil
	})

	return conn, err
}

// withRetry executes an operation with retry logic.
func (s *Session) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := s.config.InitialBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			tflog.SubsystemDebug(ctx, Subsystem, "Retrying operation", map[string]any{
				"attempt":    attempt,
				"max_retry":  s.config.MaxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryableDialError(err) {
			return err
		}

		if attempt == s.config.MaxRetries {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
			backoff = min(time.Duration(float64(backoff)*s.config.BackoffFactor), s.config.MaxBackoff)
		}
	}

	tflog.SubsystemWarn(ctx, Subsystem, "Operation failed after all retries exhausted", map[string]any{
		"total_attempts": s.config.MaxRetries + 1,
		"final_error":    lastErr.Error(),
	})

	return lastErr
}

// authenticate binds conn using the credential's method.
func (s *Session) authenticate(ctx context.Context, conn Conn, server *ServerInfo, cred *BindCredential) error {
	if cred.Username == "" {
		return fmt.Errorf("username is required for %s authentication", cred.Method)
	}

	timeout := boundedTimeout(ctx, s.config.Timeout)
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	conn.SetTimeout(timeout)

	switch cred.Method {
	case AuthMethodSimpleBind:
		// An empty password would silently become an unauthenticated bind.
		if cred.Password == "" {
			return fmt.Errorf("password is required for simple bind authentication")
		}
		return conn.Bind(cred.Username, cred.Password)
	case AuthMethodKerberos:
		return s.bindKerberos(ctx, conn, server, cred)
	default:
		return fmt.Errorf("unsupported authentication method: %s", cred.Method)
	}
}

// ready checks the session can issue a request and applies the request deadline.
func (s *Session) ready(ctx context.Context) error {
	if s.conn == nil {
		return ErrNotConnected
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := boundedTimeout(ctx, s.config.Timeout)
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	s.conn.SetTimeout(timeout)

	return nil
}

// search runs req and returns the raw entries.
func (s *Session) search(ctx context.Context, req *SearchRequest) ([]*ldap.Entry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"paged":      req.Paged,
	}

	var entries []*ldap.Entry
	err := LogOperation(ctx, Subsystem, "search", fields, func() error {
		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			req.Scope.ldapScope(),
			ldap.NeverDerefAliases,
			req.SizeLimit,
			int(boundedTimeout(ctx, s.config.Timeout).Seconds()),
			false,
			req.Filter,
			req.Attributes,
			nil,
		)

		var (
			result *ldap.SearchResult
			err    error
		)
		if req.Paged && s.config.PageSize > 0 {
			result, err = s.conn.SearchWithPaging(ldapReq, s.config.PageSize)
		} else {
			result, err = s.conn.Search(ldapReq)
		}
		if err != nil {
			return err
		}

		entries = result.Entries
		fields["entries_found"] = len(entries)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// AddRequest encapsulates LDAP add parameters.
type AddRequest struct {
	DN         string
	Attributes map[string][]string
}

// add creates req.DN. Attributes are sent in name order.
func (s *Session) add(ctx context.Context, req *AddRequest) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	fields := map[string]any{
		"dn":         req.DN,
		"attributes": slices.Sorted(maps.Keys(req.Attributes)),
	}

	return LogOperation(ctx, Subsystem, "add", fields, func() error {
		ldapReq := ldap.NewAddRequest(req.DN, nil)
		for _, name := range slices.Sorted(maps.Keys(req.Attributes)) {
			ldapReq.Attribute(name, req.Attributes[name])
		}
		return s.conn.Add(ldapReq)
	})
}

// boundedTimeout returns the smaller of limit and the time left before ctx expires.
func boundedTimeout(ctx context.Context, limit time.Duration) time.Duration {
	timeout := limit
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

func withError(fields map[string]any, err error) map[string]any {
	out := maps.Clone(fields)
	out["error"] = err.Error()
	return out
}
