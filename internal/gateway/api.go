package gateway

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arrowctl/internal/analysis"
	"arrowctl/internal/models"
	"arrowctl/internal/protocol"
)

// maxRecordBody caps record POST bodies well above any legitimate record
// size.
const maxRecordBody = 64 << 10

// respond renders a dispatcher payload: list variants with 200, the error
// variant with 400, both in their tagged wire shape.
func (this *Gateway) respond(c *gin.Context, p protocol.Payload) {
	body, err := protocol.EncodePayload(p)
	if err != nil {
		log.Println("[ERR] cannot encode payload:", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if _, failed := p.(protocol.Error); failed {
		status = http.StatusBadRequest
	}
	c.Data(status, "application/json", body)
}

func (this *Gateway) pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		this.respond(c, protocol.Errorf("malformed id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func (this *Gateway) GetBows(c *gin.Context) {
	this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.ListBows{}))
}

func (this *Gateway) PostBow(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRecordBody)
	bow := models.Bow{Id: models.InvalidId}
	if err := c.ShouldBindJSON(&bow); err != nil {
		this.respond(c, protocol.Errorf("malformed bow: %v", err))
		return
	}
	this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.AddBow{Bow: bow}))
}

// PutBow overwrites an existing bow in place.
func (this *Gateway) PutBow(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRecordBody)
	var bow models.Bow
	if err := c.ShouldBindJSON(&bow); err != nil || bow.Id == models.InvalidId {
		this.respond(c, protocol.Errorf("malformed bow"))
		return
	}
	updated, err := this.store.UpdateBow(c.Request.Context(), bow)
	if err != nil {
		this.respond(c, protocol.Errorf("could not update bow %d: %v", bow.Id, err))
		return
	}
	this.respond(c, protocol.BowList{updated})
}

// DeleteBow removes a bow and answers with the surviving list; dependent
// records go with it via the storage backend's cascades.
func (this *Gateway) DeleteBow(c *gin.Context) {
	id, ok := this.pathId(c)
	if !ok {
		return
	}
	if _, err := this.store.DeleteBow(c.Request.Context(), id); err != nil {
		this.respond(c, protocol.Errorf("could not delete bow %d: %v", id, err))
		return
	}
	this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.ListBows{}))
}

func (this *Gateway) PostArrow(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRecordBody)
	arrow := models.Arrow{Id: models.InvalidId}
	if err := c.ShouldBindJSON(&arrow); err != nil {
		this.respond(c, protocol.Errorf("malformed arrow: %v", err))
		return
	}
	this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.AddArrow{Arrow: arrow}))
}

func (this *Gateway) PostSeries(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRecordBody)
	series := models.MeasureSeries{Id: models.InvalidId}
	if err := c.ShouldBindJSON(&series); err != nil {
		this.respond(c, protocol.Errorf("malformed measure series: %v", err))
		return
	}
	this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.NewMeasureSeries{Series: series}))
}

func (this *Gateway) StartMeasure(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRecordBody)
	measure := models.Measure{Id: models.InvalidId}
	if err := c.ShouldBindJSON(&measure); err != nil {
		this.respond(c, protocol.Errorf("malformed measure: %v", err))
		return
	}
	this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.StartMeasure{Measure: measure}))
}

func (this *Gateway) GetSeries(c *gin.Context) {
	if id, ok := this.pathId(c); ok {
		this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.ListMeasureSeries{BowId: id}))
	}
}

func (this *Gateway) GetArrows(c *gin.Context) {
	if id, ok := this.pathId(c); ok {
		this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.ListArrows{BowId: id}))
	}
}

func (this *Gateway) GetMeasures(c *gin.Context) {
	if id, ok := this.pathId(c); ok {
		this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.ListMeasures{SeriesId: id}))
	}
}

func (this *Gateway) GetPoints(c *gin.Context) {
	if id, ok := this.pathId(c); ok {
		this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.ListMeasurePoints{MeasureId: id}))
	}
}

// PostCommand accepts a bare machine command string ("Calibrate") and
// acknowledges like the channel form does.
func (this *Gateway) PostCommand(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRecordBody)
	var cmd protocol.MachineCommand
	if err := c.ShouldBindJSON(&cmd); err != nil || !cmd.Valid() {
		this.respond(c, protocol.Errorf("unknown machine command"))
		return
	}
	this.respond(c, this.dispatcher.Dispatch(c.Request.Context(), protocol.Command{Command: cmd}))
}

// GetMeasureStats walks measure → series → bow for the max draw distance,
// then reduces the measure's sample points to a draw-force summary.
func (this *Gateway) GetMeasureStats(c *gin.Context) {
	id, ok := this.pathId(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	measures, err := this.store.MeasuresByIds(ctx, []int{id})
	if err != nil || len(measures) == 0 {
		this.respond(c, protocol.Errorf("unknown measure %d", id))
		return
	}
	series, err := this.store.MeasureSeriesByIds(ctx, []int{measures[0].MeasureSeriesId})
	if err != nil || len(series) == 0 {
		this.respond(c, protocol.Errorf("measure %d has no series", id))
		return
	}
	bows, err := this.store.BowsByIds(ctx, []int{series[0].BowId})
	if err != nil || len(bows) == 0 {
		this.respond(c, protocol.Errorf("measure %d has no bow", id))
		return
	}
	points, err := this.store.MeasurePoints(ctx, id)
	if err != nil {
		this.respond(c, protocol.Errorf("could not load points for measure %d: %v", id, err))
		return
	}

	summary, err := analysis.Summarize(points, bows[0].MaxDrawDistance)
	if err != nil {
		this.respond(c, protocol.Errorf("could not analyze measure %d: %v", id, err))
		return
	}
	c.JSON(http.StatusOK, summary)
}
