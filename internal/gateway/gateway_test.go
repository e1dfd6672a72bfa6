package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arrowctl/internal/analysis"
	"arrowctl/internal/gateway"
	"arrowctl/internal/models"
	"arrowctl/internal/protocol"
	"arrowctl/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startGateway(t *testing.T) (*store.Memory, *gateway.Gateway, *httptest.Server) {
	t.Helper()
	mem := store.NewMemory()
	gw := gateway.New(mem, nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	go gw.Run(ctx)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return mem, gw, srv
}

func newToken(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/client/new", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Url string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, strings.HasPrefix(out.Url, "/ws/"))
	return out.Url
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func newSession(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ws := dial(t, srv, newToken(t, srv))
	// a request round trip guarantees the session is attached
	send(t, ws, protocol.RequestOf(protocol.ListBows{}))
	readResponse(t, ws)
	return ws
}

func send(t *testing.T, ws *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	frame, err := protocol.Encode(env)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func read(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(frame)
	require.NoError(t, err)
	return env
}

func readResponse(t *testing.T, ws *websocket.Conn) protocol.Payload {
	t.Helper()
	for i := 0; i < 10; i++ {
		if env := read(t, ws); env.Response != nil {
			return env.Response
		}
	}
	t.Fatal("no response frame received")
	return nil
}

func readUpdate(t *testing.T, ws *websocket.Conn) protocol.Payload {
	t.Helper()
	for i := 0; i < 10; i++ {
		if env := read(t, ws); env.Update != nil {
			return env.Update
		}
	}
	t.Fatal("no update frame received")
	return nil
}

func TestAddBowBroadcastsToOtherSessions(t *testing.T) {
	_, _, srv := startGateway(t)
	s1 := newSession(t, srv)
	s2 := newSession(t, srv)

	send(t, s1, protocol.RequestOf(protocol.AddBow{Bow: models.Bow{
		Id:                   models.InvalidId,
		Name:                 "Recurve",
		MaxDrawDistance:      0.85,
		RemainderArrowLength: 0.1,
	}}))

	resp := readResponse(t, s1)
	bows, ok := resp.(protocol.BowList)
	require.True(t, ok, "expected BowList, got %T", resp)
	require.Len(t, bows, 1)
	assert.Equal(t, 1, bows[0].Id)
	assert.Equal(t, "Recurve", bows[0].Name)

	update := readUpdate(t, s2)
	pushed, ok := update.(protocol.BowList)
	require.True(t, ok, "expected BowList update, got %T", update)
	require.Len(t, pushed, 1)
	assert.Equal(t, 1, pushed[0].Id)
}

func TestUnparseableFrameKeepsSessionAlive(t *testing.T) {
	_, _, srv := startGateway(t)
	ws := newSession(t, srv)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("this is not an envelope")))
	resp := readResponse(t, ws)
	_, ok := resp.(protocol.Error)
	require.True(t, ok, "expected Error, got %T", resp)

	send(t, ws, protocol.RequestOf(protocol.ListBows{}))
	resp = readResponse(t, ws)
	_, ok = resp.(protocol.BowList)
	assert.True(t, ok, "expected BowList after recovery, got %T", resp)
}

func TestSameTokenLastUpgradeWins(t *testing.T) {
	_, _, srv := startGateway(t)
	path := newToken(t, srv)

	s1 := dial(t, srv, path)
	send(t, s1, protocol.RequestOf(protocol.ListBows{}))
	readResponse(t, s1)

	s2 := dial(t, srv, path)
	send(t, s2, protocol.RequestOf(protocol.ListBows{}))
	readResponse(t, s2)

	body := `{"id":-1,"name":"Longbow","max_draw_distance":0.8,"remainder_arrow_length":0.05}`
	resp, err := http.Post(srv.URL+"/api/bow", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	update := readUpdate(t, s2)
	_, ok := update.(protocol.BowList)
	assert.True(t, ok, "expected BowList update on the new socket, got %T", update)

	// the superseded socket was closed server-side
	require.NoError(t, s1.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = s1.ReadMessage()
	assert.Error(t, err)
}

func TestUnknownTokenUpgradeRejected(t *testing.T) {
	_, _, srv := startGateway(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/nosuchtoken"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClientDeleteIsIdempotent(t *testing.T) {
	_, _, srv := startGateway(t)
	path := newToken(t, srv)
	token := strings.TrimPrefix(path, "/ws/")

	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/client/delete/"+token, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// the reservation is gone, so the upgrade is rejected
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	resp.Body.Close()
}

func TestStatusReportReachesSessions(t *testing.T) {
	_, gw, srv := startGateway(t)
	ws := newSession(t, srv)

	gw.Updates() <- protocol.Status(models.StatusShooting)

	update := readUpdate(t, ws)
	status, ok := update.(protocol.Status)
	require.True(t, ok, "expected Status, got %T", update)
	assert.Equal(t, models.StatusShooting, models.MachineStatus(status))
}

func TestCrudSurface(t *testing.T) {
	_, _, srv := startGateway(t)

	body := `{"id":-1,"name":"Recurve","max_draw_distance":0.85,"remainder_arrow_length":0.1}`
	resp, err := http.Post(srv.URL+"/api/bow", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created struct {
		BowList []models.Bow
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Len(t, created.BowList, 1)
	assert.Equal(t, 1, created.BowList[0].Id)

	resp, err = http.Get(srv.URL + "/api/bows")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	update := `{"id":1,"name":"Recurve Mk2","max_draw_distance":0.9,"remainder_arrow_length":0.1}`
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/bow", strings.NewReader(update))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated struct {
		BowList []models.Bow
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	resp.Body.Close()
	require.Len(t, updated.BowList, 1)
	assert.Equal(t, "Recurve Mk2", updated.BowList[0].Name)

	// a series without a draw-distance or draw-force target is invalid
	series := `{"id":-1,"name":"morning","rest_position":0.1,"bow_id":1}`
	resp, err = http.Post(srv.URL+"/api/series", "application/json", strings.NewReader(series))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var failure struct {
		Error string
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failure))
	resp.Body.Close()
	assert.NotEmpty(t, failure.Error)

	resp, err = http.Get(srv.URL + "/api/1/arrows")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var arrows struct {
		ArrowList []models.Arrow
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&arrows))
	resp.Body.Close()
	assert.Empty(t, arrows.ArrowList)

	resp, err = http.Post(srv.URL+"/api/command", "application/json", strings.NewReader(`"Calibrate"`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var ack bytes.Buffer
	_, err = ack.ReadFrom(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, `"Alive"`, ack.String())

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/bow/1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var remaining struct {
		BowList []models.Bow
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&remaining))
	resp.Body.Close()
	assert.Empty(t, remaining.BowList)
}

func TestMeasureStatsEndpoint(t *testing.T) {
	mem, _, srv := startGateway(t)
	ctx := context.Background()

	bow, err := mem.AddBow(ctx, models.Bow{Name: "Recurve", MaxDrawDistance: 0.85, RemainderArrowLength: 0.1})
	require.NoError(t, err)
	target := 0.7
	series, err := mem.AddMeasureSeries(ctx, models.MeasureSeries{
		Name: "spring test", DrawDistance: &target, Time: models.Now(), BowId: bow.Id,
	})
	require.NoError(t, err)
	arrow, err := mem.AddArrow(ctx, models.Arrow{Length: 0.7, Weight: 0.025, BowId: bow.Id})
	require.NoError(t, err)
	measure, err := mem.AddMeasure(ctx, models.Measure{
		MeasureInterval: 0.01, MeasureSeriesId: series.Id, ArrowId: arrow.Id,
	})
	require.NoError(t, err)

	const springRate = 50.0
	points := make([]models.MeasurePoint, 10)
	for i := range points {
		x := float64(i) * 0.08
		points[i] = models.MeasurePoint{
			Time:         int64(i),
			DrawDistance: x,
			Force:        springRate * x,
			MeasureId:    measure.Id,
		}
	}
	require.NoError(t, mem.AddMeasurePoints(ctx, points))

	resp, err := http.Get(srv.URL + "/api/measure/" + strconv.Itoa(measure.Id) + "/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary analysis.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	resp.Body.Close()

	assert.Equal(t, 10, summary.Points)
	assert.InDelta(t, springRate*0.72, summary.MaxForce, 1e-6)
	assert.InDelta(t, 0.72, summary.MaxDrawDistance, 1e-9)

	// a measure with no points cannot be summarized
	empty, err := mem.AddMeasure(ctx, models.Measure{
		MeasureInterval: 0.01, MeasureSeriesId: series.Id, ArrowId: arrow.Id,
	})
	require.NoError(t, err)
	resp, err = http.Get(srv.URL + "/api/measure/" + strconv.Itoa(empty.Id) + "/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
