package httpServer

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"camclip/internal/auth"
	"camclip/internal/metrics"
	"camclip/internal/segmenter"
	"camclip/internal/storage"
	"camclip/pkg/models"
)

// Controller is the part of the recorder exposed over HTTP
type Controller interface {
	Status() models.RecorderStatus
	Stop()
	Resize(width, height float64) error
}

// Preview serves the live feed
type Preview interface {
	Snapshot() ([]byte, bool)
	Stream() http.Handler
}

// Options holds the server dependencies. Auth, Preview, Metrics and Gatherer
// are optional.
type Options struct {
	Recorder Controller
	Auth     *auth.Manager
	Store    storage.Storage
	Preview  Preview
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      logrus.FieldLogger
	ClipExt  string // Extension listed by /api/v1/clips, e.g. "mp4"
}

// Server wraps the HTTP server with dependencies
type Server struct {
	router   *gin.Engine
	recorder Controller
	auth     *auth.Manager
	store    storage.Storage
	preview  Preview
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
	clipExt  string
}

// New creates a new HTTP server
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		recorder: opts.Recorder,
		auth:     opts.Auth,
		store:    opts.Store,
		preview:  opts.Preview,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		log:      log.WithField("component", "http"),
		clipExt:  opts.ClipExt,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	if s.metrics != nil {
		router.Use(s.instrument())
	}

	router.GET("/api/ping", s.handlePing)
	// Clip downloads also accept a clip token, see handleGetClip
	router.GET("/api/v1/clips/:name", s.handleGetClip)

	api := router.Group("/api/v1", s.requireToken())
	{
		api.GET("/status", s.handleStatus)
		api.POST("/stop", s.handleStop)
		api.POST("/resize", s.handleResize)
		api.GET("/clips", s.handleListClips)
		api.POST("/clips/:name/link", s.handleClipLink)
	}

	live := router.Group("/live")
	{
		live.GET("/preview.mjpeg", s.handleStream)
		live.GET("/snapshot.jpg", s.handleSnapshot)
	}

	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	s.router = router
}

// Handler returns the router, for tests and custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Control API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Middleware

func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start).Seconds())
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.auth == nil {
			c.Next()
			return
		}
		if err := s.auth.CheckAPIToken(bearerToken(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// bearerToken extracts the token of an "Authorization: Bearer" header
func bearerToken(c *gin.Context) string {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		}).Debug("Request served")
	}
}

// Handler implementations

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.recorder.Status())
}

func (s *Server) handleStop(c *gin.Context) {
	s.recorder.Stop()

	status := s.recorder.Status()
	c.JSON(http.StatusOK, gin.H{
		"message": "recorder stopped",
		"state":   status.State,
	})
}

func (s *Server) handleResize(c *gin.Context) {
	var req models.ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.recorder.Resize(req.Width, req.Height); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, segmenter.ErrNotRunning) {
			code = http.StatusConflict
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "resize requested",
		"width":   req.Width,
		"height":  req.Height,
	})
}

func (s *Server) handleListClips(c *gin.Context) {
	objects, err := s.store.List(c.Request.Context(), s.clipExt)
	if err != nil {
		s.log.WithError(err).Error("Failed to list clips")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list clips"})
		return
	}

	clips := make([]models.ClipInfo, len(objects))
	for i, obj := range objects {
		clips[i] = models.ClipInfo{
			FileName: obj.Name,
			URL:      path.Join("/api/v1/clips", obj.Name),
		}
	}

	c.JSON(http.StatusOK, models.ClipListResponse{
		Clips: clips,
		Total: len(clips),
	})
}

func (s *Server) handleGetClip(c *gin.Context) {
	name := c.Param("name")
	if err := storage.ValidateName(name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.auth != nil && s.auth.Enabled() {
		if token := c.Query("token"); token != "" {
			if err := s.auth.ValidateClipToken(token, name); err != nil {
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
				return
			}
		} else if err := s.auth.CheckAPIToken(bearerToken(c)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
	}

	rs, err := s.store.ReadSeeker(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "clip not found"})
			return
		}
		s.log.WithError(err).WithField("clip", name).Error("Failed to open clip")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open clip"})
		return
	}
	if closer, ok := rs.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// Clips are immutable once written
	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("Content-Type", storage.ContentType(name))
	http.ServeContent(c.Writer, c.Request, name, time.Time{}, rs)
}

func (s *Server) handleClipLink(c *gin.Context) {
	name := c.Param("name")
	if err := storage.ValidateName(name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.auth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "clip links disabled"})
		return
	}

	var req models.ClipLinkRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	exists, err := s.store.Exists(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up clip"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "clip not found"})
		return
	}

	token, err := s.auth.GenerateClipToken(name, req.ExpiresIn, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	resp := models.ClipLinkResponse{
		FileName:  name,
		URL:       path.Join("/api/v1/clips", name) + "?token=" + token.Token,
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt.Format(time.RFC3339),
	}
	if signer, ok := s.store.(storage.URLSigner); ok {
		direct, err := signer.SignedURL(name, time.Until(token.ExpiresAt))
		if err != nil {
			s.log.WithError(err).WithField("clip", name).Warn("Could not sign object URL")
		} else {
			resp.DirectURL = direct
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStream(c *gin.Context) {
	if s.preview == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview disabled"})
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Access-Control-Allow-Origin", "*")
	s.preview.Stream().ServeHTTP(c.Writer, c.Request)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	if s.preview == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview disabled"})
		return
	}

	img, ok := s.preview.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame captured yet"})
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(http.StatusOK, "image/jpeg", img)
}
