package ingest

import (
	"context"
	"errors"
	"image"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/charles-d-burton/iot-printer/printer"
	"github.com/charles-d-burton/iot-printer/queue"
)

const (
	readBuffer  = 1024
	writeBuffer = 1024

	//StatusPrinting reply sent for every accepted image
	StatusPrinting = "Printing image..."
)

//Queue what the service needs from the print queue
type Queue interface {
	Enqueue(job queue.Job) error
	Stats() queue.Stats
}

//Config limits of the service
type Config struct {
	MaxUploadBytes int64
	Width          int  //images wider than this are scaled down before queueing
	Debug          bool //enables CORS
}

//Server accepts images over websocket and HTTP and queues them, it never touches the printer
type Server struct {
	queue    Queue
	cfg      Config
	log      *logrus.Entry
	upgrader websocket.Upgrader
}

//New a server feeding q, zero limits take the defaults
func New(q Queue, cfg Config, log *logrus.Entry) *Server {
	if cfg.Width <= 0 {
		cfg.Width = printer.MaxWidth
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 8 << 20
	}
	return &Server{
		queue: q,
		cfg:   cfg,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

//Router the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	if s.cfg.Debug {
		router.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowMethods:     []string{"GET", "POST"},
			AllowCredentials: true,
			ExposeHeaders:    []string{"Content-Length"},
		}))
	}
	router.GET("/ws", s.SubscribeWSS)
	router.POST("/images", s.PostImage)
	router.GET("/healthz", s.HealthCheck)
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("Request handled")
	}
}

//Accept decode, scale and queue one image, nothing is queued on error
func (s *Server) Accept(raw []byte, base64Encoded bool) error {
	var img image.Image
	var err error
	if base64Encoded {
		img, err = printer.DecodeBase64(raw)
	} else {
		img, err = printer.Decode(raw)
	}
	if err != nil {
		return err
	}
	return s.queue.Enqueue(queue.PrintImage(printer.Fit(img, s.cfg.Width), queue.ImageFeed))
}

//SubscribeWSS every message is a base64 image, every reply a status line
func (s *Server) SubscribeWSS(c *gin.Context) {
	log := s.log.WithField("conn", uuid.New().String()).WithField("remote", c.ClientIP())
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxUploadBytes*4/3 + 4)
	log.Info("Websocket opened")

	// hijacked connections outlive http.Server.Shutdown
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c.Request.Context().Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("Websocket closed unexpectedly")
			} else {
				log.Info("Websocket closed")
			}
			return
		}

		reply := StatusPrinting
		if err := s.Accept(msg, true); err != nil {
			log.WithError(err).Warn("Rejected image")
			reply = "Error: " + err.Error()
		} else {
			log.WithField("bytes", len(msg)).Info("Image queued")
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			log.WithError(err).Warn("Websocket write failed")
			return
		}
	}
}

//PostImage raw image bytes when the content type is image/*, base64 otherwise
func (s *Server) PostImage(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	encoded := !strings.HasPrefix(c.ContentType(), "image/")
	if err := s.Accept(body, encoded); err != nil {
		var decodeErr *printer.DecodeError
		if errors.As(err, &decodeErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": StatusPrinting})
}

//HealthCheck reports the queue counters
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "queue": s.queue.Stats()})
}

//ListenAndServe serve until the context ends, then shut down gracefully
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, log *logrus.Entry) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Starting image service")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("Stopping image service")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
