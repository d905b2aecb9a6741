// Package proxy implements the mcpscan intercept proxy. It sits between an
// agent and an MCP server, scans tool-call payloads in flight, and either
// annotates or blocks requests whose code would fail a scan.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luckyPipewrench/mcpscan/internal/audit"
	"github.com/luckyPipewrench/mcpscan/internal/config"
	"github.com/luckyPipewrench/mcpscan/internal/detect"
	"github.com/luckyPipewrench/mcpscan/internal/finding"
	"github.com/luckyPipewrench/mcpscan/internal/metrics"
	"github.com/luckyPipewrench/mcpscan/internal/suppress"
)

// maxBodySize bounds how much of a request body the proxy will buffer for
// scanning.
const maxBodySize = 4 << 20 // 4 MiB

// toolCallBody is the subset of an intercepted request the proxy scans.
type toolCallBody struct {
	ToolCalls []struct {
		Name string `json:"name"`
		Code string `json:"code"`
	} `json:"tool_calls"`
}

// Proxy scans tool calls on their way to an upstream MCP server.
type Proxy struct {
	detectors []detect.Detector
	upstream  *url.URL
	reverse   *httputil.ReverseProxy
	audit     *audit.Logger
	metrics   *metrics.Metrics
	log       zerolog.Logger

	mu       sync.RWMutex
	blockOn  finding.Severity
	block    bool
	suppress *suppress.Manager

	server      *http.Server
	adminServer *http.Server
}

// New builds a Proxy from config. The upstream URL must parse; everything
// else has working defaults.
func New(cfg *config.Config, detectors []detect.Detector, auditLog *audit.Logger, m *metrics.Metrics, log zerolog.Logger) (*Proxy, error) {
	upstream, err := url.Parse(cfg.Proxy.Upstream)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", cfg.Proxy.Upstream)
	}

	p := &Proxy{
		detectors: detectors,
		upstream:  upstream,
		reverse:   httputil.NewSingleHostReverseProxy(upstream),
		audit:     auditLog,
		metrics:   m,
		log:       log,
	}
	p.ApplyConfig(cfg)
	if cfg.Suppressions != "" {
		if err := p.loadSuppressions(cfg.Suppressions); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", p.handle)
	p.server = &http.Server{
		Addr:              cfg.Proxy.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Proxy.AdminListen != "" {
		admin := http.NewServeMux()
		if m != nil {
			admin.Handle("/metrics", m.Handler())
		}
		admin.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
		})
		p.adminServer = &http.Server{
			Addr:              cfg.Proxy.AdminListen,
			Handler:           admin,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return p, nil
}

// ApplyConfig updates the reloadable parts of the proxy: the blocking
// threshold. Listen addresses and upstream require a restart.
func (p *Proxy) ApplyConfig(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = cfg.Proxy.BlockOn != ""
	if p.block {
		sev, err := finding.ParseSeverity(cfg.Proxy.BlockOn)
		if err != nil {
			// Validate() rejects unknown values before we get here.
			panic(fmt.Sprintf("BUG: block_on %q survived config validation: %v", cfg.Proxy.BlockOn, err))
		}
		p.blockOn = sev
	}
}

// loadSuppressions swaps in the rule set at path. Suppressed findings never
// count toward a block decision.
func (p *Proxy) loadSuppressions(path string) error {
	mgr, err := suppress.Load(path)
	if err != nil {
		return err
	}
	mgr.OnSuppress(p.audit.LogSuppressed)
	p.mu.Lock()
	p.suppress = mgr
	p.mu.Unlock()
	return nil
}

// Run serves until ctx is cancelled. Reload, when non-nil, delivers updated
// configs from a config.Reloader.
func (p *Proxy) Run(ctx context.Context, reload <-chan *config.Config) error {
	errCh := make(chan error, 2)

	go func() {
		p.log.Info().Str("listen", p.server.Addr).Str("upstream", p.upstream.String()).Msg("intercept proxy listening")
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	if p.adminServer != nil {
		go func() {
			p.log.Info().Str("listen", p.adminServer.Addr).Msg("admin endpoint listening")
			if err := p.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = p.server.Shutdown(shutdownCtx)
			if p.adminServer != nil {
				_ = p.adminServer.Shutdown(shutdownCtx)
			}
			return nil
		case err := <-errCh:
			return err
		case cfg, ok := <-reload:
			if !ok {
				reload = nil
				continue
			}
			p.ApplyConfig(cfg)
			if cfg.Suppressions != "" {
				if err := p.loadSuppressions(cfg.Suppressions); err != nil {
					p.log.Warn().Err(err).Msg("suppressions reload failed, keeping previous rules")
				}
			}
			p.audit.LogConfigReload("", nil)
			p.log.Info().Msg("proxy config reloaded")
		}
	}
}

// Handler exposes the proxy mux for tests.
func (p *Proxy) Handler() http.Handler { return p.server.Handler }

func (p *Proxy) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost || r.Body == nil {
		p.forward(w, r, start, 0)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadGateway)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if int64(len(body)) > maxBodySize {
		// Too big to scan; forward untouched rather than fail open silently.
		p.log.Warn().Str("path", r.URL.Path).Int("bytes", len(body)).Msg("body exceeds scan limit, forwarded unscanned")
		p.forward(w, r, start, 0)
		return
	}

	findings := p.scanBody(body)
	findings, suppressed := p.filterSuppressed(findings)
	if suppressed > 0 && p.metrics != nil {
		p.metrics.RecordSuppressed(suppressed)
	}
	if len(findings) > 0 {
		p.audit.LogProxyScan(r.URL.Path, len(findings), p.shouldBlock(findings))
	}

	if p.shouldBlock(findings) {
		if p.metrics != nil {
			p.metrics.RecordProxyRequest("blocked", len(findings), time.Since(start))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":    "tool call blocked by security scan",
			"findings": findings,
		})
		return
	}

	p.forward(w, r, start, len(findings))
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, start time.Time, findings int) {
	if p.metrics != nil {
		p.metrics.RecordProxyRequest("forwarded", findings, time.Since(start))
	}
	p.reverse.ServeHTTP(w, r)
}

// scanBody extracts tool_calls[].code and runs every detector over each
// snippet. The synthetic path names the call index so findings stay
// attributable without any real file behind them.
func (p *Proxy) scanBody(body []byte) []finding.Finding {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var tc toolCallBody
	if err := json.Unmarshal(trimmed, &tc); err != nil || len(tc.ToolCalls) == 0 {
		return nil
	}

	start := time.Now()
	var all []finding.Finding
	for i, call := range tc.ToolCalls {
		if strings.TrimSpace(call.Code) == "" {
			continue
		}
		path := fmt.Sprintf("proxy:tool_call/%d", i)
		for _, d := range p.detectors {
			fs, err := d.Scan(call.Code, path)
			if err != nil {
				p.log.Warn().Err(err).Str("detector", d.Name()).Str("path", path).Msg("detector failed")
				p.audit.LogError("proxy detector "+d.Name(), err)
				continue
			}
			all = append(all, fs...)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordScan(all, time.Since(start))
	}
	return all
}

func (p *Proxy) filterSuppressed(findings []finding.Finding) ([]finding.Finding, int) {
	p.mu.RLock()
	mgr := p.suppress
	p.mu.RUnlock()
	if mgr == nil || len(findings) == 0 {
		return findings, 0
	}
	kept, removed := mgr.Filter(findings)
	return kept, len(removed)
}

func (p *Proxy) shouldBlock(findings []finding.Finding) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.block {
		return false
	}
	for _, f := range findings {
		if f.Severity >= p.blockOn {
			return true
		}
	}
	return false
}
