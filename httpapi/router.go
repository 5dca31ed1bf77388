package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/dernate/scadabridge"
	"github.com/dernate/scadabridge/audit"
	"github.com/dernate/scadabridge/outstation"
)

const requestTimeout = 5 * time.Second

// Bridge is the read side of the bridge.
type Bridge interface {
	Status(ctx context.Context) (scadabridge.Status, error)
	Points() []outstation.PointValue
}

// Master issues analog output commands the way the SCADA master does.
type Master interface {
	SelectAnalogOutput(index uint16, value float64) outstation.CommandStatus
	OperateAnalogOutput(index uint16, value float64, opType outstation.OperateType) outstation.CommandStatus
}

// Journal lists handled commands.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
}

// Deps are the services behind the routes. Journal and Metrics may be nil.
type Deps struct {
	Bridge  Bridge
	Master  Master
	Journal Journal
	Metrics http.Handler
}

type api struct {
	deps Deps
}

// NewRouter registers the status and commissioning routes.
func NewRouter(d Deps) *mux.Router {
	a := &api{deps: d}
	r := mux.NewRouter()

	r.HandleFunc("/health", a.health).Methods("GET")
	r.HandleFunc("/status", a.status).Methods("GET")
	r.HandleFunc("/points", a.points).Methods("GET")
	r.HandleFunc("/journal", a.journal).Methods("GET")
	r.HandleFunc("/commands/{index:[0-9]+}", a.command).Methods("POST")
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods("GET")
	}
	return r
}

// Handler wraps the router with panic recovery and access logging to w.
func Handler(d Deps, w io.Writer) http.Handler {
	return handlers.LoggingHandler(w, handlers.RecoveryHandler()(NewRouter(d)))
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	st, err := a.deps.Bridge.Status(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) points(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Bridge.Points())
}

func (a *api) journal(w http.ResponseWriter, r *http.Request) {
	if a.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := a.deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// CommandRequest is the body of POST /commands/{index}.
type CommandRequest struct {
	Value *float64 `json:"value"`
	// Mode is "sbo" (select then operate, default), "select", "operate" or "direct".
	Mode string `json:"mode"`
}

// CommandResponse reports the statuses the outstation returned.
type CommandResponse struct {
	Index  uint16  `json:"index"`
	Value  float64 `json:"value"`
	Mode   string  `json:"mode"`
	Status string  `json:"status"`
}

func (a *api) command(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = "sbo"
	}

	idx, v := uint16(index), *req.Value
	var status outstation.CommandStatus
	switch mode {
	case "sbo":
		status = a.deps.Master.SelectAnalogOutput(idx, v)
		if status == outstation.CommandStatusSuccess {
			status = a.deps.Master.OperateAnalogOutput(idx, v, outstation.OperateTypeSelectBeforeOperate)
		}
	case "select":
		status = a.deps.Master.SelectAnalogOutput(idx, v)
	case "operate":
		status = a.deps.Master.OperateAnalogOutput(idx, v, outstation.OperateTypeSelectBeforeOperate)
	case "direct":
		status = a.deps.Master.OperateAnalogOutput(idx, v, outstation.OperateTypeDirectOperate)
	default:
		writeError(w, http.StatusBadRequest, "unknown mode "+req.Mode)
		return
	}

	code := http.StatusOK
	if status != outstation.CommandStatusSuccess {
		code = http.StatusConflict
	}
	writeJSON(w, code, CommandResponse{Index: idx, Value: v, Mode: mode, Status: status.String()})
}
