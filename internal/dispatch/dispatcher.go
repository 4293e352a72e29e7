// Package dispatch validates operation requests and runs them against the
// directory domain they name.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/adis/internal/credentials"
	"github.com/isometry/adis/internal/ldap"
)

// Subsystem is the tflog subsystem used by the dispatcher.
const Subsystem = "dispatch"

// DefaultTimeout bounds a dispatch when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// Request is one operation request.
type Request struct {
	Method     string          `json:"method"`
	Parameters json.RawMessage `json:"parameters"`
}

// Resolver maps a domain identifier to its service account.
type Resolver interface {
	Resolve(ctx context.Context, domain string) (credentials.Credential, error)
}

// Connector opens an authenticated Directory for a credential.
type Connector func(ctx context.Context, credential credentials.Credential) (Directory, error)

// NewConnector returns a Connector that opens a fresh ldap.Session per call.
// A nil cfg means ldap.DefaultConfig().
func NewConnector(cfg *ldap.ConnectionConfig, opts ...ldap.SessionOption) Connector {
	if cfg == nil {
		cfg = ldap.DefaultConfig()
	}

	return func(ctx context.Context, credential credentials.Credential) (Directory, error) {
		session := ldap.NewSession(cfg, opts...)
		if err := session.Open(ctx, credential.Server(cfg.UseTLS), credential.Bind()); err != nil {
			_ = session.Close()
			return nil, err
		}
		return session, nil
	}
}

// Observer receives dispatch measurements.
type Observer interface {
	ObserveDispatch(method, outcome string, elapsed time.Duration)
	ObserveConnect(result string)
}

type nopObserver struct{}

func (nopObserver) ObserveDispatch(string, string, time.Duration) {}
func (nopObserver) ObserveConnect(string)                         {}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds every dispatch, including connect and bind.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithObserver records dispatch and connect metrics.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		if observer != nil {
			d.observer = observer
		}
	}
}

// Dispatcher runs operation requests. It holds no per-request state and is
// safe for concurrent use.
type Dispatcher struct {
	resolver  Resolver
	connect   Connector
	schemas   schemaSet
	executors map[Method]executor
	timeout   time.Duration
	observer  Observer
}

// New builds a Dispatcher. It panics if a supported method lacks an executor
// or its parameter schema fails to compile.
func New(resolver Resolver, connect Connector, opts ...Option) *Dispatcher {
	return newDispatcher(resolver, connect, defaultExecutors(), opts...)
}

func newDispatcher(resolver Resolver, connect Connector, executors map[Method]executor, opts ...Option) *Dispatcher {
	mustCoverMethods(executors)

	schemas, err := compileSchemas()
	if err != nil {
		panic(fmt.Sprintf("dispatch: %v", err))
	}

	d := &Dispatcher{
		resolver:  resolver,
		connect:   connect,
		schemas:   schemas,
		executors: executors,
		timeout:   DefaultTimeout,
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Execute validates and runs req. On failure the returned Envelope carries
// the caller-facing error text and the error is a *Error.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (Envelope, error) {
	start := time.Now()

	outcome := d.dispatch(ctx, req)

	elapsed := time.Since(start)
	methodLabel := "unknown"
	if outcome.Method != "" {
		methodLabel = string(outcome.Method)
	}
	d.observer.ObserveDispatch(methodLabel, outcome.Label(), elapsed)

	fields := map[string]any{
		"method":      methodLabel,
		"outcome":     outcome.Label(),
		"duration_ms": elapsed.Milliseconds(),
	}
	if !outcome.OK() {
		fields["error"] = outcome.Err.Error()
		if outcome.Err.Kind == KindInternal {
			tflog.SubsystemError(ctx, Subsystem, "Dispatch failed", fields)
		} else {
			tflog.SubsystemWarn(ctx, Subsystem, "Dispatch failed", fields)
		}
		return Normalize(outcome), outcome.Err
	}

	tflog.SubsystemInfo(ctx, Subsystem, "Dispatch completed", fields)
	return Normalize(outcome), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Outcome {
	method, err := ParseMethod(req.Method)
	if err != nil {
		return failed("", newError(KindValidation, "", err))
	}

	exec := d.executors[method]

	instance, err := d.schemas.validate(method, req.Parameters)
	if err != nil {
		return failed(method, newError(KindValidation, method, err))
	}

	p, err := exec.decode(instance)
	if err != nil {
		return failed(method, newError(KindValidation, method, err))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ctx = tflog.SubsystemSetField(ctx, Subsystem, "domain", p.DomainName())

	credential, err := d.resolver.Resolve(ctx, p.DomainName())
	if err != nil {
		return failed(method, classify(method, err))
	}

	dir, err := d.connect(ctx, credential)
	if err != nil {
		d.observer.ObserveConnect(connectResult(err))
		return failed(method, classify(method, err))
	}
	d.observer.ObserveConnect("success")
	defer func() {
		if err := dir.Close(); err != nil {
			tflog.SubsystemWarn(ctx, Subsystem, "Failed to close directory session", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	payload, err := exec.run(ctx, dir, p)
	if err != nil {
		return failed(method, classify(method, err))
	}

	return succeeded(method, exec.key, payload)
}

// connectResult labels a connect failure for metrics.
func connectResult(err error) string {
	var connErr *ldap.ConnectionError
	if !errors.As(err, &connErr) {
		return "error"
	}
	if connErr.Reason == ldap.ConnectReasonAuthentication {
		return "authentication_error"
	}
	return "transport_error"
}
