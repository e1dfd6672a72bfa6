// Package gateway is the synchronization core: it owns the session
// registry, the HTTP/websocket surface, and the path from storage change
// events back out to every connected viewer.
package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"arrowctl/internal/dispatch"
	"arrowctl/internal/protocol"
	"arrowctl/internal/registry"
	"arrowctl/internal/store"
)

// updateQueueDepth bounds the pending-update queue shared by the change
// bridge and the device controller's status reports.
const updateQueueDepth = 64

type Gateway struct {
	router     *gin.Engine
	registry   *registry.Registry
	store      store.Store
	dispatcher *dispatch.Dispatcher
	updates    chan protocol.Payload
	assets     string
}

// New assembles the gateway over st. commands is the device controller's
// inbox (nil when no device is attached); assets names the UI bundle
// directory and may be empty.
func New(st store.Store, commands chan<- protocol.MachineCommand, assets string) *Gateway {
	this := &Gateway{
		registry:   registry.New(),
		store:      st,
		dispatcher: dispatch.New(st, commands),
		updates:    make(chan protocol.Payload, updateQueueDepth),
		assets:     assets,
	}

	this.router = gin.Default()
	this.router.SetTrustedProxies(nil)

	this.router.POST("/api/client/new", this.NewClient)
	this.router.DELETE("/api/client/delete/:token", this.DeleteClient)
	this.router.GET("/ws/:token", this.LiveChannel)

	this.router.GET("/api/bows", this.GetBows)
	this.router.POST("/api/bow", this.PostBow)
	this.router.PUT("/api/bow", this.PutBow)
	this.router.DELETE("/api/bow/:id", this.DeleteBow)
	this.router.POST("/api/arrow", this.PostArrow)
	this.router.POST("/api/series", this.PostSeries)
	this.router.POST("/api/measure/start", this.StartMeasure)
	this.router.GET("/api/measure/:id/stats", this.GetMeasureStats)
	this.router.POST("/api/command", this.PostCommand)
	this.router.GET("/api/:id/series", this.GetSeries)
	this.router.GET("/api/:id/arrows", this.GetArrows)
	this.router.GET("/api/:id/measures", this.GetMeasures)
	this.router.GET("/api/:id/points", this.GetPoints)

	if this.assets != "" {
		this.router.NoRoute(gin.WrapH(http.FileServer(http.Dir(this.assets))))
	}

	return this
}

// Handler exposes the routed surface for an http.Server.
func (this *Gateway) Handler() http.Handler { return this.router }

// Updates is the pending-update queue's write side; the device controller
// reports Status payloads into it.
func (this *Gateway) Updates() chan<- protocol.Payload { return this.updates }

// Run drives the change-notification bridge and the broadcast fan-out
// until ctx is cancelled.
func (this *Gateway) Run(ctx context.Context) {
	go this.runBridge(ctx)
	this.runFanout(ctx)
}
