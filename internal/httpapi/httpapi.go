// Package httpapi is the collector's control-plane boundary: a thin
// gin-gonic translation layer over internal/inventory and
// internal/gateway, with no business logic of its own, grounded in the
// original's aiohttp route table (api_server.py) and carried as an
// ambient external-interface concern even though the spec's non-goals
// exclude authentication.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yobol/iec104collector/internal/gateway"
	"github.com/yobol/iec104collector/internal/inventory"
)

// Server wires the inventory store and command gateway onto a gin
// engine.
type Server struct {
	store  *inventory.Store
	gw     *gateway.Gateway
	log    *logrus.Entry
	Engine *gin.Engine
}

// New builds a Server and registers every route.
func New(store *inventory.Store, gw *gateway.Gateway, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{store: store, gw: gw, log: log.WithField("component", "httpapi")}
	s.Engine = gin.New()
	s.Engine.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method": c.Request.Method, "path": c.Request.URL.Path, "status": c.Writer.Status(),
		}).Debug("request")
	}
}

func (s *Server) registerRoutes() {
	v1 := s.Engine.Group("/api/v1")

	v1.GET("/devices", s.listDevices)
	v1.POST("/devices", s.createDevice)
	v1.GET("/devices/:device_id", s.getDevice)
	v1.PUT("/devices/:device_id", s.updateDevice)
	v1.DELETE("/devices/:device_id", s.deleteDevice)
	v1.GET("/devices/:device_id/terms", s.listDeviceTerms)

	v1.GET("/terms/:term_id", s.getTerm)
	v1.POST("/terms", s.createTerm)
	v1.DELETE("/devices/:device_id/terms/:term_id", s.deleteTerm)

	v1.GET("/items", s.listItems)
	v1.POST("/items", s.createItem)
	v1.GET("/items/:item_id", s.getItem)
	v1.DELETE("/items/:item_id", s.deleteItem)

	v1.POST("/term_items", s.createTermItem)
	v1.GET("/terms/:term_id/items/:item_id", s.getTermItem)
	v1.DELETE("/devices/:device_id/terms/:term_id/items/:item_id", s.deleteTermItem)

	v1.POST("/device_call", s.deviceCall)
	v1.POST("/device_ctrl", s.deviceCtrl)
}

func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, redis.Nil):
		c.String(http.StatusNotFound, "not found")
	case errors.Is(err, gateway.ErrNotFound):
		c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, gateway.ErrTimeout):
		c.String(http.StatusGatewayTimeout, err.Error())
	default:
		c.String(http.StatusBadRequest, err.Error())
	}
}

// --- devices ---

func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.store.ListDevices(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (s *Server) createDevice(c *gin.Context) {
	var d inventory.Device
	if err := c.ShouldBindJSON(&d); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetDevice(c.Request.Context(), d.ID); err == nil {
		c.String(http.StatusConflict, "device already exists")
		return
	}
	if err := s.store.AddDevice(c.Request.Context(), d); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) getDevice(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	d, err := s.store.GetDevice(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) updateDevice(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetDevice(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	var d inventory.Device
	if err := c.ShouldBindJSON(&d); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	d.ID = id
	if err := s.store.FreshDevice(c.Request.Context(), d); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) deleteDevice(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetDevice(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	if err := s.store.DeleteDevice(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) listDeviceTerms(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	terms, err := s.store.ListDeviceTerms(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, terms)
}

// --- terminals ---

func (s *Server) createTerm(c *gin.Context) {
	var t inventory.Terminal
	if err := c.ShouldBindJSON(&t); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.AddTerm(c.Request.Context(), t); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) getTerm(c *gin.Context) {
	id, err := pathID(c, "term_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.store.GetTerm(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTerm(c *gin.Context) {
	deviceID, err := pathID(c, "device_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	termID, err := pathID(c, "term_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetTerm(c.Request.Context(), termID); err != nil {
		writeErr(c, err)
		return
	}
	if err := s.store.DeleteTerm(c.Request.Context(), deviceID, termID); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// --- items ---

func (s *Server) listItems(c *gin.Context) {
	items, err := s.store.ListItems(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) createItem(c *gin.Context) {
	var i inventory.Item
	if err := c.ShouldBindJSON(&i); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetItem(c.Request.Context(), i.ID); err == nil {
		c.String(http.StatusConflict, "item already exists")
		return
	}
	if err := s.store.AddItem(c.Request.Context(), i); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) getItem(c *gin.Context) {
	id, err := pathID(c, "item_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	i, err := s.store.GetItem(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, i)
}

func (s *Server) deleteItem(c *gin.Context) {
	id, err := pathID(c, "item_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetItem(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	if err := s.store.DeleteItem(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// --- term/item bindings ---

func (s *Server) createTermItem(c *gin.Context) {
	var req struct {
		Protocol string             `json:"protocol"`
		DeviceID int64              `json:"device_id"`
		TermItem inventory.TermItem `json:"term_item"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.AddTermItem(c.Request.Context(), req.Protocol, req.DeviceID, req.TermItem); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) getTermItem(c *gin.Context) {
	termID, err := pathID(c, "term_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	itemID, err := pathID(c, "item_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	ti, err := s.store.GetTermItem(c.Request.Context(), termID, itemID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ti)
}

func (s *Server) deleteTermItem(c *gin.Context) {
	deviceID, err := pathID(c, "device_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	termID, err := pathID(c, "term_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	itemID, err := pathID(c, "item_id")
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteTermItem(c.Request.Context(), deviceID, termID, itemID); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// --- command gateway ---

type callCtrlBody struct {
	DeviceID int64   `json:"device_id" binding:"required"`
	TermID   int64   `json:"term_id" binding:"required"`
	ItemID   int64   `json:"item_id" binding:"required"`
	Value    float64 `json:"value"`
}

func (s *Server) deviceCall(c *gin.Context) {
	var body callCtrlBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	reply, err := s.gw.Call(c.Request.Context(), body.DeviceID, body.TermID, body.ItemID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", reply)
}

func (s *Server) deviceCtrl(c *gin.Context) {
	var body callCtrlBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	reply, err := s.gw.Ctrl(c.Request.Context(), body.DeviceID, body.TermID, body.ItemID, body.Value)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", reply)
}

func pathID(c *gin.Context, param string) (int64, error) {
	return strconv.ParseInt(c.Param(param), 10, 64)
}
