package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/marketd/internal/config"
	"github.com/loykin/marketd/internal/procmgr"
	"github.com/loykin/marketd/internal/schedule"
	"github.com/loykin/marketd/internal/store"
)

// Router provides embeddable HTTP handlers for operating the supervisor.
// Endpoints:
//
//	GET  {basePath}/status        phase plus desired-vs-observed per process
//	GET  {basePath}/calendar      the active trading calendar
//	GET  {basePath}/audit/recent  query: limit=N (default 50)
//	POST {basePath}/recover       synchronous recovery run
//	GET  {basePath}/healthz
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	disp     *schedule.Dispatcher
	client   procmgr.Client
	st       store.Store // nil when no audit store is configured
	cal      config.CalendarConfig
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(disp *schedule.Dispatcher, client procmgr.Client, st store.Store,
	cal config.CalendarConfig, basePath string) *Router {
	return &Router{disp: disp, client: client, st: st, cal: cal, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/calendar", r.handleCalendar)
	group.GET("/audit/recent", r.handleAuditRecent)
	group.POST("/recover", r.handleRecover)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Call Shutdown or Close on the returned server to stop it.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type processStatus struct {
	Name     string `json:"name"`
	Desired  string `json:"desired"`
	Observed string `json:"observed"`
	InSync   bool   `json:"in_sync"`
}

type statusResp struct {
	Now       time.Time       `json:"now"`
	Phase     string          `json:"phase"`
	Processes []processStatus `json:"processes"`
}

func (r *Router) handleStatus(c *gin.Context) {
	now := time.Now()
	phase := r.disp.Phase(now)
	policies := r.disp.Policies()
	out := statusResp{Now: now.UTC(), Phase: string(phase), Processes: make([]processStatus, 0, len(policies))}
	for _, p := range policies {
		desired := p.Desired(phase)
		observed, err := r.client.Status(c.Request.Context(), p.Name)
		if err != nil {
			observed = procmgr.StateUnknown
		}
		out.Processes = append(out.Processes, processStatus{
			Name:     p.Name,
			Desired:  string(desired),
			Observed: string(observed),
			InSync:   observed == desired,
		})
	}
	writeJSON(c, http.StatusOK, out)
}

type calendarResp struct {
	Timezone     string   `json:"timezone"`
	Weekdays     []string `json:"weekdays"`
	SessionOpen  string   `json:"session_open"`
	SessionClose string   `json:"session_close"`
	Holidays     []string `json:"holidays"`
	Phase        string   `json:"phase"`
}

func (r *Router) handleCalendar(c *gin.Context) {
	days := r.cal.Weekdays
	if len(days) == 0 {
		days = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	writeJSON(c, http.StatusOK, calendarResp{
		Timezone:     r.cal.Timezone,
		Weekdays:     days,
		SessionOpen:  r.cal.SessionOpen,
		SessionClose: r.cal.SessionClose,
		Holidays:     r.cal.Holidays,
		Phase:        string(r.disp.Phase(time.Now())),
	})
}

func (r *Router) handleAuditRecent(c *gin.Context) {
	if r.st == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no audit store configured"})
		return
	}
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	recs, err := r.st.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, recs)
}

func (r *Router) handleRecover(c *gin.Context) {
	r.disp.RunRecovery(c.Request.Context(), time.Now())
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
