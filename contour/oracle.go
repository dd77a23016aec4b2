package contour

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Oracle is the remote side of geometric verification: an HTTP service that
// computes the contour for a submitted proof and reports whether its
// complexity clears the configured minimum.
type Oracle struct {
	params Params
	log    *zap.Logger
}

func NewOracle(params Params, log *zap.Logger) *Oracle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Oracle{params: params, log: log}
}

// Handler returns the oracle's HTTP routes.
func (o *Oracle) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/verify-contour", o.verifyContour).Methods(http.MethodPost)
	r.HandleFunc("/healthz", o.health).Methods(http.MethodGet)
	return r
}

type oracleVerdict struct {
	Valid       bool    `json:"valid"`
	Complexity  float64 `json:"complexity"`
	ContourHash string  `json:"contourHash,omitempty"`
}

func (o *Oracle) verifyContour(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ContourData == nil {
		http.Error(w, "contourData is required", http.StatusBadRequest)
		return
	}

	proc := NewProcessor(o.params)
	verdict := oracleVerdict{}
	ok := true
	for _, pt := range req.ContourData.Points {
		if err := proc.AddPoint(pt); err != nil {
			o.log.Debug("rejecting contour point", zap.Error(err), zap.String("tx", req.TransactionHash))
			ok = false
			break
		}
	}
	if ok {
		curve, err := proc.Contour(req.ContourData.Algorithm)
		if err != nil {
			ok = false
		} else {
			verdict.Complexity = proc.Complexity(req.ContourData.Algorithm)
			verdict.ContourHash = Hash(curve)
			ok = verdict.Complexity >= o.params.MinComplexity
		}
	}
	verdict.Valid = ok

	o.log.Debug("contour verified",
		zap.String("tx", req.TransactionHash),
		zap.Bool("valid", verdict.Valid),
		zap.Float64("complexity", verdict.Complexity))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verdict)
}

func (o *Oracle) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"healthy": true})
}
