package marketd

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/loykin/marketd/internal/calendar"
	"github.com/loykin/marketd/internal/config"
)

// fakeManager emulates a process-manager daemon over the REST protocol.
type fakeManager struct {
	mu      sync.Mutex
	running map[string]bool
}

func newFakeManager(names ...string) *fakeManager {
	fm := &fakeManager{running: map[string]bool{}}
	for _, n := range names {
		fm.running[n] = false
	}
	return fm
}

func (fm *fakeManager) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		fm.mu.Lock()
		running, ok := fm.running[name]
		fm.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown process"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": name, "running": running})
	})
	action := func(run bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			name := r.URL.Query().Get("name")
			fm.mu.Lock()
			defer fm.mu.Unlock()
			if _, ok := fm.running[name]; !ok {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown process"})
				return
			}
			fm.running[name] = run
			_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		}
	}
	mux.HandleFunc("/api/start", action(true))
	mux.HandleFunc("/api/stop", action(false))
	mux.HandleFunc("/api/restart", action(true))
	return mux
}

func testSupervisor(t *testing.T, fm *fakeManager, auditFile string) *Supervisor {
	t.Helper()
	srv := httptest.NewServer(fm.handler())
	t.Cleanup(srv.Close)

	cfg, err := config.Build(config.FileConfig{
		Calendar: config.CalendarConfig{
			Timezone:     "Asia/Kolkata",
			SessionOpen:  "09:15",
			SessionClose: "15:30",
		},
		Processes: []config.ProcessConfig{
			{Name: "engine", RunWhen: []string{"open"}},
			{Name: "monitor", RunWhen: []string{"always"}},
		},
		Triggers: []config.TriggerConfig{
			{Name: "open-engine", At: "09:10", Action: "start", Target: "engine"},
		},
		Manager: config.ManagerConfig{Type: "http", BaseURL: srv.URL + "/api"},
		Audit:   config.AuditConfig{File: auditFile},
		Server:  config.ServerConfig{BasePath: "/api"},
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	sup, err := NewSupervisor(cfg, nil)
	if err != nil {
		t.Fatalf("supervisor: %v", err)
	}
	t.Cleanup(sup.Close)
	return sup
}

func TestSupervisorRecoverConverges(t *testing.T) {
	fm := newFakeManager("engine", "monitor")
	sup := testSupervisor(t, fm, "")

	sup.Recover(context.Background())

	if ph := sup.Phase(); ph == "" {
		t.Fatalf("phase must be defined")
	}
	// monitor runs in every trading phase and stops on non-trading days;
	// either way the recovery pass must leave it in the state the phase
	// implies rather than the fake's initial stopped state by accident.
	wantMonitor := sup.Phase() != calendar.PhaseNonTradingDay
	fm.mu.Lock()
	got := fm.running["monitor"]
	fm.mu.Unlock()
	if got != wantMonitor {
		t.Fatalf("monitor running = %v, phase %s", got, sup.Phase())
	}
}

func TestSupervisorValidate(t *testing.T) {
	fm := newFakeManager("engine", "monitor")
	sup := testSupervisor(t, fm, "")
	if err := sup.Validate(context.Background()); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSupervisorValidateUnknownProcess(t *testing.T) {
	fm := newFakeManager("engine") // monitor missing
	sup := testSupervisor(t, fm, "")
	if err := sup.Validate(context.Background()); err == nil {
		t.Fatalf("expected error for unknown process")
	}
}

func TestSupervisorAuditFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fm := newFakeManager("engine", "monitor")
	sup := testSupervisor(t, fm, path)

	sup.Recover(context.Background())

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("audit file: %v", err)
	}
	defer func() { _ = f.Close() }()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e map[string]any
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %d not JSON: %v", lines+1, err)
		}
		if e["trigger"] != "recovery" {
			t.Fatalf("recovery entries must carry the recovery trigger: %v", e)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("audit lines = %d, want one per process", lines)
	}
}

func TestSupervisorRouterServesStatus(t *testing.T) {
	fm := newFakeManager("engine", "monitor")
	sup := testSupervisor(t, fm, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	sup.Router().Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Phase     string `json:"phase"`
		Processes []struct {
			Name string `json:"name"`
		} `json:"processes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Processes) != 2 {
		t.Fatalf("processes = %d, want 2", len(resp.Processes))
	}
}
