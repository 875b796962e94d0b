package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "xui-vpn-shop/internal/errors"
	"xui-vpn-shop/internal/models"
)

const apiKeyHeader = "X-API-Key"

// ClientSource is what the API reads from the panel
type ClientSource interface {
	Clients(ctx context.Context) ([]models.Client, error)
	ClientLink(ctx context.Context, email string) (string, error)
}

// Server is the read-only ops API
type Server struct {
	source ClientSource
	apiKey string
	log    *logrus.Logger
	engine *gin.Engine
}

// clientView is the API shape of a panel client
type clientView struct {
	Email      string `json:"email"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Flow       string `json:"flow,omitempty"`
	Unlimited  bool   `json:"unlimited"`
}

// NewServer builds the router
func NewServer(source ClientSource, apiKey string, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{source: source, apiKey: apiKey, log: log}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.health)

	auth := r.Group("/api")
	auth.Use(s.requireAPIKey())
	auth.GET("/clients", s.listClients)
	auth.GET("/clients/:email/link", s.clientLink)

	s.engine = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Ops API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("Ops API shutdown error: %v", err)
		return err
	}
	s.log.Info("Ops API stopped")
	return nil
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "API key is not configured"})
			return
		}
		got := c.GetHeader(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listClients(c *gin.Context) {
	clients, err := s.source.Clients(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	views := make([]clientView, 0, len(clients))
	for _, client := range clients {
		views = append(views, clientView{
			Email:      client.Email,
			LimitIP:    client.LimitIP,
			TotalGB:    client.TotalGB,
			ExpiryTime: client.ExpiryTime,
			Flow:       client.Flow,
			Unlimited:  client.IsUnlimited(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": views})
}

func (s *Server) clientLink(c *gin.Context) {
	email := c.Param("email")
	link, err := s.source.ClientLink(c.Request.Context(), email)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"email": email, "link": link}})
}

// fail maps panel errors to HTTP statuses
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway

	var notFound *apperrors.NotFoundError
	var timeout *apperrors.LinkResolutionTimeoutError
	if errors.As(err, &notFound) || errors.As(err, &timeout) {
		status = http.StatusNotFound
	} else {
		s.log.Errorf("Ops API request %s failed: %v", c.Request.URL.Path, err)
	}

	c.JSON(status, gin.H{"code": status, "message": err.Error()})
}
