// Package protocol implements the wire envelope spoken on the live channel.
// A frame is one JSON document: an externally tagged union with exactly one
// of the Request, Update or Response cases, whose payload is itself an
// externally tagged union. Unit variants encode as bare strings
// ("ListBows", "Alive"), all other variants as single-key objects
// ({"AddBow": {...}}).
package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"

	"arrowctl/internal/models"
)

// Request is a client-originated payload. Exactly one concrete type per
// wire tag.
type Request interface {
	requestTag() string
}

type ListBows struct{}

type ListMeasureSeries struct {
	BowId int `json:"bow_id"`
}

type ListArrows struct {
	BowId int `json:"bow_id"`
}

type ListMeasures struct {
	SeriesId int `json:"series_id"`
}

type ListMeasurePoints struct {
	MeasureId int `json:"measure_id"`
}

type AddBow struct {
	Bow models.Bow
}

type AddArrow struct {
	Arrow models.Arrow
}

type NewMeasureSeries struct {
	Series models.MeasureSeries
}

type StartMeasure struct {
	Measure models.Measure
}

type Command struct {
	Command MachineCommand
}

type MachineCommand string

const (
	CmdCalibrate MachineCommand = "Calibrate"
	CmdReset     MachineCommand = "Reset"
	CmdRestart   MachineCommand = "Restart"
	CmdShutdown  MachineCommand = "Shutdown"
)

func (c MachineCommand) Valid() bool {
	switch c {
	case CmdCalibrate, CmdReset, CmdRestart, CmdShutdown:
		return true
	}
	return false
}

func (ListBows) requestTag() string          { return "ListBows" }
func (ListMeasureSeries) requestTag() string { return "ListMeasureSeries" }
func (ListArrows) requestTag() string        { return "ListArrows" }
func (ListMeasures) requestTag() string      { return "ListMeasures" }
func (ListMeasurePoints) requestTag() string { return "ListMeasurePoints" }
func (AddBow) requestTag() string            { return "AddBow" }
func (AddArrow) requestTag() string          { return "AddArrow" }
func (NewMeasureSeries) requestTag() string  { return "NewMeasureSeries" }
func (StartMeasure) requestTag() string      { return "StartMeasure" }
func (Command) requestTag() string           { return "Command" }

// Payload is a server-originated payload, used both for solicited
// responses and unsolicited updates.
type Payload interface {
	payloadTag() string
}

type Alive struct{}

type BowList []models.Bow

type MeasureSeriesList []models.MeasureSeries

type ArrowList []models.Arrow

type MeasureList []models.Measure

type MeasurePointList []models.MeasurePoint

type Status models.MachineStatus

type Error string

func (Alive) payloadTag() string             { return "Alive" }
func (BowList) payloadTag() string           { return "BowList" }
func (MeasureSeriesList) payloadTag() string { return "MeasureSeriesList" }
func (ArrowList) payloadTag() string         { return "ArrowList" }
func (MeasureList) payloadTag() string       { return "MeasureList" }
func (MeasurePointList) payloadTag() string  { return "MeasurePointList" }
func (Status) payloadTag() string            { return "Status" }
func (Error) payloadTag() string             { return "Error" }

// Errorf builds an Error payload, the single shape every failure is
// reported in.
func Errorf(format string, args ...interface{}) Error {
	return Error(errors.Errorf(format, args...).Error())
}

// Envelope is the frame-level union. Exactly one field may be non-nil.
type Envelope struct {
	Request  Request
	Update   Payload
	Response Payload
}

func RequestOf(r Request) Envelope  { return Envelope{Request: r} }
func UpdateOf(p Payload) Envelope   { return Envelope{Update: p} }
func ResponseOf(p Payload) Envelope { return Envelope{Response: p} }

func (e Envelope) MarshalJSON() ([]byte, error) {
	switch {
	case e.Request != nil && e.Update == nil && e.Response == nil:
		inner, err := marshalRequest(e.Request)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"Request": inner})
	case e.Update != nil && e.Request == nil && e.Response == nil:
		inner, err := marshalPayload(e.Update)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"Update": inner})
	case e.Response != nil && e.Request == nil && e.Update == nil:
		inner, err := marshalPayload(e.Response)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"Response": inner})
	}
	return nil, errors.New("envelope must carry exactly one of Request, Update, Response")
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	tag, inner, err := splitTagged(data)
	if err != nil {
		return err
	}
	switch tag {
	case "Request":
		r, err := unmarshalRequest(inner)
		if err != nil {
			return err
		}
		*e = Envelope{Request: r}
	case "Update":
		p, err := unmarshalPayload(inner)
		if err != nil {
			return err
		}
		*e = Envelope{Update: p}
	case "Response":
		p, err := unmarshalPayload(inner)
		if err != nil {
			return err
		}
		*e = Envelope{Response: p}
	default:
		return errors.Errorf("unknown envelope tag %q", tag)
	}
	return nil
}

// Encode renders one envelope as a single text frame.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// EncodePayload renders a payload in its tagged wire form without an
// envelope, the shape the HTTP surface answers with.
func EncodePayload(p Payload) ([]byte, error) {
	return marshalPayload(p)
}

// Decode parses a text frame. A failure here never tears down the session;
// callers answer it with an Error response instead.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// splitTagged takes either a bare string ("Alive") or a single-key object
// ({"AddBow": ...}) and returns the variant tag plus the inner document
// (nil for unit variants).
func splitTagged(data []byte) (string, json.RawMessage, error) {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		return unit, nil, nil
	}
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return "", nil, errors.Wrap(err, "malformed tagged union")
	}
	if len(tagged) != 1 {
		return "", nil, errors.Errorf("tagged union must have exactly one variant, got %d", len(tagged))
	}
	for tag, inner := range tagged {
		return tag, inner, nil
	}
	panic("unreachable")
}

func wrap(tag string, inner interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{tag: body})
}

func marshalRequest(r Request) (json.RawMessage, error) {
	switch v := r.(type) {
	case ListBows:
		return json.Marshal(v.requestTag())
	case AddBow:
		return wrap(v.requestTag(), v.Bow)
	case AddArrow:
		return wrap(v.requestTag(), v.Arrow)
	case NewMeasureSeries:
		return wrap(v.requestTag(), v.Series)
	case StartMeasure:
		return wrap(v.requestTag(), v.Measure)
	case Command:
		return wrap(v.requestTag(), v.Command)
	case ListMeasureSeries, ListArrows, ListMeasures, ListMeasurePoints:
		return wrap(r.requestTag(), r)
	}
	return nil, errors.Errorf("unencodable request %T", r)
}

func unmarshalRequest(data json.RawMessage) (Request, error) {
	tag, inner, err := splitTagged(data)
	if err != nil {
		return nil, err
	}
	if inner == nil && tag != "ListBows" {
		return nil, errors.Errorf("request variant %q needs a payload", tag)
	}
	switch tag {
	case "ListBows":
		return ListBows{}, nil
	case "ListMeasureSeries":
		var v ListMeasureSeries
		if err := json.Unmarshal(inner, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "ListArrows":
		var v ListArrows
		if err := json.Unmarshal(inner, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "ListMeasures":
		var v ListMeasures
		if err := json.Unmarshal(inner, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "ListMeasurePoints":
		var v ListMeasurePoints
		if err := json.Unmarshal(inner, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "AddBow":
		var v AddBow
		v.Bow.Id = models.InvalidId
		if err := json.Unmarshal(inner, &v.Bow); err != nil {
			return nil, err
		}
		return v, nil
	case "AddArrow":
		var v AddArrow
		v.Arrow.Id = models.InvalidId
		if err := json.Unmarshal(inner, &v.Arrow); err != nil {
			return nil, err
		}
		return v, nil
	case "NewMeasureSeries":
		var v NewMeasureSeries
		v.Series.Id = models.InvalidId
		if err := json.Unmarshal(inner, &v.Series); err != nil {
			return nil, err
		}
		return v, nil
	case "StartMeasure":
		var v StartMeasure
		v.Measure.Id = models.InvalidId
		if err := json.Unmarshal(inner, &v.Measure); err != nil {
			return nil, err
		}
		return v, nil
	case "Command":
		var v Command
		if err := json.Unmarshal(inner, &v.Command); err != nil {
			return nil, err
		}
		if !v.Command.Valid() {
			return nil, errors.Errorf("unknown machine command %q", v.Command)
		}
		return v, nil
	}
	return nil, errors.Errorf("unknown request variant %q", tag)
}

func marshalPayload(p Payload) (json.RawMessage, error) {
	switch v := p.(type) {
	case Alive:
		return json.Marshal(v.payloadTag())
	case BowList:
		return wrap(v.payloadTag(), []models.Bow(v))
	case MeasureSeriesList:
		return wrap(v.payloadTag(), []models.MeasureSeries(v))
	case ArrowList:
		return wrap(v.payloadTag(), []models.Arrow(v))
	case MeasureList:
		return wrap(v.payloadTag(), []models.Measure(v))
	case MeasurePointList:
		return wrap(v.payloadTag(), []models.MeasurePoint(v))
	case Status:
		return wrap(v.payloadTag(), models.MachineStatus(v))
	case Error:
		return wrap(v.payloadTag(), string(v))
	}
	return nil, errors.Errorf("unencodable payload %T", p)
}

func unmarshalPayload(data json.RawMessage) (Payload, error) {
	tag, inner, err := splitTagged(data)
	if err != nil {
		return nil, err
	}
	if inner == nil && tag != "Alive" {
		return nil, errors.Errorf("payload variant %q needs a payload", tag)
	}
	switch tag {
	case "Alive":
		return Alive{}, nil
	case "BowList":
		var v []models.Bow
		if err := json.Unmarshal(inner, &v); err != nil {
			return nil, err
		}
		return BowList(v), nil
	case "MeasureSeriesList":
		var v []models.MeasureSeries
		if err := json.Unmarshal(inner, &v); err != nil {
			return nil, err
		}
		return MeasureSeriesList(v), nil
	case "ArrowList":
		var v []models.Arrow
		if err := json.Unmarshal(inner, &v); err != nil {
			return nil, err
		}
		return ArrowList(v), nil
	case "MeasureList":
		var v []models.Measure
		if err := json.Unmarshal(inner, &v); err != nil {
			return nil, err
		}
		return MeasureList(v), nil
	case "MeasurePointList":
		var v []models.MeasurePoint
		if err := json.Unmarshal(inner, &v); err != nil {
			return nil, err
		}
		return MeasurePointList(v), nil
	case "Status":
		var s models.MachineStatus
		if err := json.Unmarshal(inner, &s); err != nil {
			return nil, err
		}
		if !s.Valid() {
			return nil, errors.Errorf("unknown machine status %q", s)
		}
		return Status(s), nil
	case "Error":
		var s string
		if err := json.Unmarshal(inner, &s); err != nil {
			return nil, err
		}
		return Error(s), nil
	}
	return nil, errors.Errorf("unknown payload variant %q", tag)
}
