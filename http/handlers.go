// server/http/handlers.go
package http

import (
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"html/template"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/vinizap/mindmap/server/domain"
	"github.com/vinizap/mindmap/server/filesystem"
	"github.com/vinizap/mindmap/server/metrics"
	"github.com/vinizap/mindmap/server/store"
	"github.com/vinizap/mindmap/server/ws"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type Server struct {
	store   store.Store
	hub     *ws.Hub
	metrics *metrics.Collector
	log     zerolog.Logger
	strict  bool
}

// NewServer wires handlers to st. With strict set, /save rejects documents
// that fail domain.Validate instead of storing them as-is.
func NewServer(st store.Store, hub *ws.Hub, m *metrics.Collector, log zerolog.Logger, strict bool) *Server {
	m.ObserveDocument(st.Get())
	return &Server{
		store:   st,
		hub:     hub,
		metrics: m,
		log:     log,
		strict:  strict,
	}
}

type pageData struct {
	DocumentJSON string
	ServerID     string
}

func (s *Server) HandleIndex(c *fiber.Ctx) error {
	data, err := json.Marshal(s.store.Get())
	if err != nil {
		return err
	}

	c.Type("html", "utf-8")
	return pageTemplate.Execute(c, pageData{
		DocumentJSON: string(data),
		ServerID:     s.hub.Origin(),
	})
}

func (s *Server) HandleSave(c *fiber.Ctx) error {
	var doc domain.Document
	if err := json.Unmarshal(c.Body(), &doc); err != nil {
		s.metrics.Saves.WithLabelValues("http", "rejected").Inc()
		return fiber.NewError(fiber.StatusBadRequest, "invalid mind map: "+err.Error())
	}
	doc = doc.WithEmptyLists()

	if s.strict {
		if err := domain.Validate(doc); err != nil {
			s.metrics.Saves.WithLabelValues("http", "rejected").Inc()

			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error":    verr.Error(),
					"problems": verr.Problems,
				})
			}
			return err
		}
	}

	stored := s.store.Replace(doc)
	s.metrics.Saves.WithLabelValues("http", "ok").Inc()
	s.metrics.ObserveDocument(stored)
	s.hub.Broadcast(ws.TypeReplaced, stored)

	s.log.Info().
		Int("nodes", len(stored.Nodes)).
		Int("connections", len(stored.Connections)).
		Msg("mind map replaced")

	return c.JSON(stored)
}

func (s *Server) HandleGetMindMap(c *fiber.Ctx) error {
	body, err := json.Marshal(s.store.Get())
	if err != nil {
		return err
	}

	etag := documentETag(body)
	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	if etagMatches(c.Get(fiber.HeaderIfNoneMatch), etag) {
		return c.SendStatus(fiber.StatusNotModified)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// HandleExport returns the current map as YAML, usable as MINDMAP_SEED_FILE.
func (s *Server) HandleExport(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "application/yaml")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="mindmap.yaml"`)
	return filesystem.EncodeDocument(c, s.store.Get())
}

func (s *Server) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"server_id": s.hub.Origin(),
		"clients":   s.hub.ClientCount(),
	})
}

func (s *Server) HandleWebSocket(conn *websocket.Conn) {
	s.metrics.WebsocketClients.Inc()
	defer s.metrics.WebsocketClients.Dec()

	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	if peerID := conn.Query("server_id"); peerID != "" {
		log = log.With().Str("peer", peerID).Logger()
	}
	log.Debug().Msg("websocket connected")

	s.hub.HandleConnection(conn)

	log.Debug().Msg("websocket disconnected")
}

func documentETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
