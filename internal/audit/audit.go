// Package audit provides an async, buffered writer for proxy request audit
// records: one row per /v1/* call, capturing the full fallback attempt chain.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexusgate/gateway/internal/auth"
)

// Attempt records a single fallback attempt (one provider/credential try)
// inside a request, mirroring spec §3's Attempt Record.
type Attempt struct {
	ProviderID   string `json:"provider_id"`
	CredentialID string `json:"credential_id,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	LatencyMS    int64  `json:"latency_ms"`
}

// Entry represents a single proxy request audit log entry to be written.
type Entry struct {
	RequestID       uuid.UUID
	Tenant          string
	ClientIdentity  string // opaque /v1/* bearer token identifier, never the raw token
	IPAddress       *netip.Addr
	UserAgent       *string
	Endpoint        string
	Method          string
	ModelAlias      string
	ProviderID      string
	CredentialID    string
	StatusCode      int
	LatencyMS       int64
	InputTokens     int
	OutputTokens    int
	TotalTokens     int
	FallbackChain   []Attempt
	FallbackCount   int
	ErrorType       string
	ErrorMessage    string
	CreatedAt       time.Time
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine so request
// handling is never blocked on a database write.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to the
// database and returns immediately. The goroutine exits when the context is
// cancelled and all pending entries have been flushed.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"endpoint", entry.Endpoint, "model_alias", entry.ModelAlias)
	}
}

// LogFromRequest is a convenience method that extracts the client identity,
// IP, and user agent from the request, then enqueues the entry. Callers
// fill in the proxy-specific fields (model alias, fallback chain, usage)
// before calling this.
func (w *Writer) LogFromRequest(r *http.Request, entry Entry) {
	entry.Endpoint = r.URL.Path
	entry.Method = r.Method

	if id := auth.FromContext(r.Context()); id != nil && entry.ClientIdentity == "" {
		entry.ClientIdentity = id.Subject
	}

	ip := clientIP(r)
	if ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the request_audit table.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		chain, err := json.Marshal(e.FallbackChain)
		if err != nil {
			w.logger.Error("marshaling fallback chain", "error", err, "request_id", e.RequestID)
			chain = []byte("[]")
		}

		var ipStr *string
		if e.IPAddress != nil {
			s := e.IPAddress.String()
			ipStr = &s
		}

		_, err = w.pool.Exec(ctx, `
			INSERT INTO request_audit (
				request_id, tenant, client_identity, ip_address, user_agent,
				endpoint, method, model_alias, provider_id, credential_id,
				status_code, latency_ms, input_tokens, output_tokens, total_tokens,
				fallback_chain, fallback_count, error_type, error_message
			) VALUES (
				$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
			)`,
			e.RequestID, e.Tenant, e.ClientIdentity, ipStr, e.UserAgent,
			e.Endpoint, e.Method, e.ModelAlias, nullIfEmpty(e.ProviderID), nullIfEmpty(e.CredentialID),
			e.StatusCode, e.LatencyMS, e.InputTokens, e.OutputTokens, e.TotalTokens,
			chain, e.FallbackCount, nullIfEmpty(e.ErrorType), nullIfEmpty(e.ErrorMessage),
		)
		if err != nil {
			w.logger.Error("writing audit log entry", "error", err,
				"request_id", e.RequestID, "endpoint", e.Endpoint)
		}
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
