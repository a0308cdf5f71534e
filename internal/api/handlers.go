package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Reminders is the slice of the reminder service the API serves.
type Reminders interface {
	Add(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error)
	Remove(ctx context.Context, id string) (reminder.Reminder, error)
	Get(id string) (reminder.Reminder, error)
	Snapshot() reminder.Snapshot
}

// SchedulerStatus feeds the status endpoint.
type SchedulerStatus interface {
	Snapshot() scheduler.Snapshot
}

// NotifierStatus feeds the status endpoint.
type NotifierStatus interface {
	Enabled() bool
	QueueDepth() (int, int)
}

// Deps are the app services the API serves. Scheduler, Notifier and Store
// may be nil; the endpoints that need them degrade gracefully.
type Deps struct {
	Reminders Reminders
	Scheduler SchedulerStatus
	Notifier  NotifierStatus
	Store     storage.Store
}

func newEngine(cfg Config, deps Deps, log logx.Logger) *gin.Engine {
	e := gin.New()
	_ = e.SetTrustedProxies(nil)
	e.Use(recoverRequest(log), logRequest(log))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(corsFromOrigins(cfg.CORSOrigins))
	}

	e.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	h := &handlers{deps: deps, log: log}
	v1 := e.Group("/api/v1", bearerAuth(cfg.Token))
	v1.POST("/reminders", h.createReminder)
	v1.GET("/reminders", h.listReminders)
	v1.GET("/reminders/:id", h.getReminder)
	v1.DELETE("/reminders/:id", h.deleteReminder)
	v1.GET("/status", h.status)
	v1.GET("/audit", h.recentAudit)
	return e
}

// bearerAuth guards a route group with a static token. Accepts either
// "Authorization: Bearer <token>" or "?token=<token>". An empty configured
// token leaves the group open (loopback binds).
func bearerAuth(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		if tok == "" {
			c.Next()
			return
		}
		if got := c.Query("token"); got != "" && got == tok {
			c.Next()
			return
		}
		if ah := c.GetHeader("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				c.Next()
				return
			}
		}
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func recoverRequest(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in http handler",
					logx.String("path", c.Request.URL.Path),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

func logRequest(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", status),
			logx.Duration("took", time.Since(start)),
			logx.String("client", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("http request", fields...)
		default:
			log.Debug("http request", fields...)
		}
	}
}

func corsFromOrigins(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		cc.AllowOrigins = append(cc.AllowOrigins, o)
	}
	return cors.New(cc)
}

type handlers struct {
	deps Deps
	log  logx.Logger
}

// createReminderRequest is the POST /api/v1/reminders body. Exactly one of
// at (RFC3339), in (Go duration) or repeat (cron spec / @every) sets the
// fire time.
type createReminderRequest struct {
	Title   string `json:"title" binding:"required"`
	Message string `json:"message"`

	At     string `json:"at"`
	In     string `json:"in"`
	Repeat string `json:"repeat"`

	Channel string `json:"channel"`
	EmailTo string `json:"email_to"`

	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id"`
}

type reminderResponse struct {
	ID      string `json:"id"`
	ShortID string `json:"short_id"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`

	At     string `json:"at,omitempty"`     // RFC3339, one-shot fire time
	Repeat string `json:"repeat,omitempty"` // schedule spec, repeating only

	Channel string `json:"channel"`
	EmailTo string `json:"email_to,omitempty"`

	ChatID   int64 `json:"chat_id,omitempty"`
	ThreadID int   `json:"thread_id,omitempty"`

	CreatedAt string `json:"created_at"`
}

func toResponse(r reminder.Reminder) reminderResponse {
	resp := reminderResponse{
		ID:        r.ID.String(),
		ShortID:   reminder.ShortID(r.ID),
		Title:     r.Title,
		Message:   r.Message,
		Repeat:    r.Repeat,
		Channel:   r.Channel,
		EmailTo:   r.EmailTo,
		ChatID:    r.Target.ChatID,
		ThreadID:  r.Target.ThreadID,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
	if !r.At.IsZero() {
		resp.At = r.At.Format(time.RFC3339)
	}
	return resp
}

func (h *handlers) createReminder(c *gin.Context) {
	start := time.Now()

	var req createReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	at := strings.TrimSpace(req.At)
	in := strings.TrimSpace(req.In)
	rpt := strings.TrimSpace(req.Repeat)
	set := 0
	for _, v := range []string{at, in, rpt} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "set exactly one of at, in, repeat"})
		return
	}

	r := reminder.Reminder{
		Title:   req.Title,
		Message: req.Message,
		Repeat:  rpt,
		Channel: req.Channel,
		EmailTo: req.EmailTo,
		Target:  kit.ChatTarget{ChatID: req.ChatID, ThreadID: req.ThreadID},
	}
	switch {
	case at != "":
		// Past targets are accepted; they fire on the next scheduler tick.
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad at: want RFC3339, e.g. 2026-08-24T09:30:00+07:00"})
			return
		}
		r.At = t
	case in != "":
		d, err := time.ParseDuration(in)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad in: want a positive Go duration, e.g. 45m"})
			return
		}
		r.At = time.Now().Add(d)
	}

	created, err := h.deps.Reminders.Add(c.Request.Context(), r)
	if err != nil {
		h.audit(c, "reminder.add", "", err, start)
		status := http.StatusBadRequest
		if errors.Is(err, reminder.ErrStoreFull) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.audit(c, "reminder.add", reminder.ShortID(created.ID), nil, start)
	c.JSON(http.StatusCreated, toResponse(created))
}

func (h *handlers) listReminders(c *gin.Context) {
	snap := h.deps.Reminders.Snapshot()
	items := make([]reminderResponse, 0, len(snap.Items))
	for _, r := range snap.Items {
		items = append(items, toResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"count": snap.Count,
		"limit": snap.Limit,
		"items": items,
	})
}

func (h *handlers) getReminder(c *gin.Context) {
	r, err := h.deps.Reminders.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusForLookup(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(r))
}

func (h *handlers) deleteReminder(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")

	removed, err := h.deps.Reminders.Remove(c.Request.Context(), id)
	if err != nil {
		h.audit(c, "reminder.del", id, err, start)
		c.JSON(statusForLookup(err), gin.H{"error": err.Error()})
		return
	}

	h.audit(c, "reminder.del", reminder.ShortID(removed.ID), nil, start)
	c.JSON(http.StatusOK, gin.H{"deleted": toResponse(removed)})
}

func statusForLookup(err error) int {
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, reminder.ErrAmbiguous):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) status(c *gin.Context) {
	resp := gin.H{}
	if h.deps.Reminders != nil {
		snap := h.deps.Reminders.Snapshot()
		resp["reminders"] = gin.H{"count": snap.Count, "limit": snap.Limit}
	}
	if h.deps.Scheduler != nil {
		ss := h.deps.Scheduler.Snapshot()
		resp["scheduler"] = gin.H{
			"enabled":      ss.Enabled,
			"timezone":     ss.Timezone,
			"workers":      ss.Workers,
			"queue_len":    ss.QueueLen,
			"queue_cap":    ss.QueueCap,
			"schedules":    len(ss.Schedules),
			"pending_once": len(ss.Once),
		}
	}
	if h.deps.Notifier != nil {
		ql, qc := h.deps.Notifier.QueueDepth()
		resp["notifier"] = gin.H{
			"enabled":   h.deps.Notifier.Enabled(),
			"queue_len": ql,
			"queue_cap": qc,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) recentAudit(c *gin.Context) {
	if h.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad limit"})
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	items, err := h.deps.Store.RecentAudit(c.Request.Context(), limit)
	if err != nil {
		h.log.Warn("audit read failed", logx.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit read failed"})
		return
	}
	if items == nil {
		items = []storage.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// audit records one mutating API call; best effort, detached from the
// request context so a client disconnect does not lose the entry.
func (h *handlers) audit(c *gin.Context, action, target string, opErr error, start time.Time) {
	if h.deps.Store == nil {
		return
	}

	e := storage.AuditEntry{
		Source: "api",
		Action: action,
		Target: target,
		OK:     opErr == nil,
		TookMS: time.Since(start).Milliseconds(),
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	if ip := c.ClientIP(); ip != "" {
		if b, err := json.Marshal(map[string]string{"client": ip}); err == nil {
			e.MetaJSON = string(b)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := h.deps.Store.AppendAudit(ctx, e); err != nil {
		h.log.Debug("audit append failed", logx.String("action", action), logx.Any("err", err))
	}
}
