package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"arbejdsret/internal/document"
	"arbejdsret/internal/models"
	"arbejdsret/internal/service/ai"
	"arbejdsret/internal/service/assistant"
	"arbejdsret/internal/session"
	"arbejdsret/internal/worker"
)

const (
	defaultMaxUploadBytes = 10 << 20 // 10 MB
	newsFailedMessage     = "Kunne ikke hente juridiske nyheder."
)

// Handler wires HTTP routes to the assistant views.
type Handler struct {
	assistant      *assistant.Service
	log            logrus.FieldLogger
	maxUploadBytes int64
	poolStats      func() (running, idle int)
}

// NewHandler constructs a Handler instance. maxUploadBytes <= 0 selects the
// default limit.
func NewHandler(service *assistant.Service, maxUploadBytes int64, log logrus.FieldLogger) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{assistant: service, log: log, maxUploadBytes: maxUploadBytes}
}

// WithPoolStats reports worker pool usage on the health endpoint.
func (h *Handler) WithPoolStats(stats func() (running, idle int)) *Handler {
	h.poolStats = stats
	return h
}

// NewRouter returns a gin engine with recovery, request logging and all routes.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.log))
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/healthz", h.healthz)

	api.GET("/termination", h.terminationState)
	api.POST("/termination", h.submitTermination)
	api.DELETE("/termination", h.resetTermination)

	api.GET("/analyze", h.analyzerState)
	api.POST("/analyze", h.analyzeDocument)
	api.POST("/analyze/upload", h.analyzeUpload)

	chat := api.Group("/chat")
	chat.GET("/topics", h.listTopics)
	chat.GET("/sessions", h.listSessions)
	chat.POST("/sessions", h.createSession)
	chat.GET("/sessions/:id", h.getSession)
	chat.DELETE("/sessions/:id", h.deleteSession)
	chat.PUT("/sessions/:id/topic", h.setTopic)
	chat.POST("/sessions/:id/messages", h.sendMessage)
	chat.PUT("/active", h.selectSession)

	api.GET("/news", h.news)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ai.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, assistant.ErrBusy), errors.Is(err, worker.ErrPoolBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, assistant.ErrInvalidInput),
		errors.Is(err, assistant.ErrEmptyMessage),
		errors.Is(err, session.ErrInvalidTopic),
		errors.Is(err, document.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrStaleResponse):
		return http.StatusConflict
	case errors.Is(err, ai.ErrTransport),
		errors.Is(err, ai.ErrEmptyResponse),
		errors.Is(err, ai.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Validation errors carry their own
// text; model errors are reduced to the user-facing message.
func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	msg := assistant.UserMessage(err, fallback)
	switch status {
	case http.StatusBadRequest:
		msg = err.Error()
	case http.StatusNotFound:
		msg = "session not found"
	case http.StatusConflict:
		msg = "response superseded by a newer request"
	case http.StatusInternalServerError:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	c.JSON(status, gin.H{"error": msg})
}

func (h *Handler) healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.poolStats != nil {
		running, idle := h.poolStats()
		body["workers"] = gin.H{"running": running, "idle": idle}
	}
	c.JSON(http.StatusOK, body)
}

// Termination wizard

func (h *Handler) terminationState(c *gin.Context) {
	c.JSON(http.StatusOK, h.assistant.Wizard.State())
}

func (h *Handler) submitTermination(c *gin.Context) {
	var req models.TerminationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := h.assistant.Wizard.Submit(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, assistant.GenerationFailedMessage)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) resetTermination(c *gin.Context) {
	h.assistant.Wizard.Reset()
	c.Status(http.StatusNoContent)
}

// Clause analyzer

type analyzeRequest struct {
	Name     string `json:"name"`
	DataURL  string `json:"data_url"`
	MIMEType string `json:"mime_type"`
	Text     string `json:"text"`
}

func (r analyzeRequest) document() (document.Document, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = "dokument"
	}
	if r.DataURL != "" {
		return document.FromDataURL(name, r.DataURL)
	}
	if strings.TrimSpace(r.Text) == "" {
		return document.Document{}, errors.New("data_url or text is required")
	}
	mimeType := r.MIMEType
	if mimeType == "" {
		if guessed, err := document.MIMEFromName(name); err == nil {
			mimeType = guessed
		} else {
			mimeType = "text/plain"
		}
	}
	return document.FromText(name, mimeType, r.Text)
}

func (h *Handler) analyzerState(c *gin.Context) {
	c.JSON(http.StatusOK, h.assistant.Analyzer.State())
}

func (h *Handler) analyzeDocument(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	doc, err := req.document()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.analyze(c, doc)
}

func (h *Handler) analyzeUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	raw, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}

	name := filepath.Base(file.Filename)
	mimeType, err := document.MIMEFromName(name)
	if err != nil {
		mimeType = file.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(raw)
		}
	}
	doc, err := document.FromBytes(name, mimeType, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.analyze(c, doc)
}

func (h *Handler) analyze(c *gin.Context, doc document.Document) {
	text, err := h.assistant.Analyzer.Analyze(c.Request.Context(), doc)
	if err != nil {
		h.writeError(c, err, assistant.AnalysisFailedMessage)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document": doc.Name,
		"kind":     doc.Kind.String(),
		"analysis": text,
	})
}

// Legal chat

func (h *Handler) listTopics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"topics": models.Topics})
}

func (h *Handler) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions":  h.assistant.Chat.Sessions(),
		"active_id": h.assistant.Chat.ActiveID(),
	})
}

type topicRequest struct {
	Topic models.Topic `json:"topic"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req topicRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	se, err := h.assistant.Chat.NewSession(c.Request.Context(), req.Topic)
	if err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, se)
}

func (h *Handler) getSession(c *gin.Context) {
	se, err := h.assistant.Chat.Session(c.Param("id"))
	if err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": se,
		"status":  h.assistant.Chat.Status(se.ID),
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.assistant.Chat.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setTopic(c *gin.Context) {
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.assistant.Chat.SetTopic(c.Request.Context(), c.Param("id"), req.Topic); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) selectSession(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	if err := h.assistant.Chat.Select(req.ID); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := h.assistant.Chat.Send(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		if res == nil {
			h.writeError(c, err, assistant.ChatFailedMessage)
			return
		}
		// The error notice was stored as the reply; return it with the status.
		c.JSON(statusFor(err), gin.H{
			"error":  assistant.UserMessage(err, assistant.ChatFailedMessage),
			"result": res,
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Dashboard

func (h *Handler) news(c *gin.Context) {
	items, err := h.assistant.Dashboard.News(c.Request.Context())
	if err != nil {
		h.writeError(c, err, newsFailedMessage)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
