// Command mock-model serves a stand-in for the TensorFlow Serving REST API so
// the classifier service can be run locally without the trained model.
//
// Predictions are deterministic: the mel bins are split into one band per
// class and the probabilities are a softmax over the mean level of each band.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"

	"gonum.org/v1/gonum/floats"
)

type predictRequest struct {
	Instances [][][][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

func main() {
	addr := flag.String("addr", ":8501", "Listen address")
	model := flag.String("model", "sound_classifier", "Model name")
	classes := flag.Int("classes", 6, "Number of output classes")
	temperature := flag.Float64("temperature", 4, "Softmax temperature in dB")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	base := "/v1/models/" + *model
	http.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"model_version_status": []map[string]interface{}{{
				"version": "1",
				"state":   "AVAILABLE",
				"status":  map[string]string{"error_code": "OK", "error_message": ""},
			}},
		})
	})

	http.HandleFunc(base+":predict", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		resp := predictResponse{Predictions: make([][]float64, 0, len(req.Instances))}
		for _, inst := range req.Instances {
			probs, err := bandSoftmax(inst, *classes, *temperature)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			resp.Predictions = append(resp.Predictions, probs)
		}

		logger.Info("Prediction served", "instances", len(req.Instances))
		writeJSON(w, http.StatusOK, resp)
	})

	logger.Info("Mock model server starting",
		"addr", *addr,
		"model", *model,
		"classes", *classes)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// bandSoftmax scores each class by the mean level of its share of mel bins
func bandSoftmax(inst [][][]float64, classes int, temperature float64) ([]float64, error) {
	if len(inst) < classes {
		return nil, fmt.Errorf("instance has %d bins, need at least %d", len(inst), classes)
	}

	scores := make([]float64, classes)
	per := len(inst) / classes
	for c := range scores {
		var levels []float64
		for _, frames := range inst[c*per : (c+1)*per] {
			for _, v := range frames {
				if len(v) != 1 {
					return nil, fmt.Errorf("expected a single channel per cell")
				}
				levels = append(levels, v[0])
			}
		}
		if len(levels) > 0 {
			scores[c] = floats.Sum(levels) / float64(len(levels)) / temperature
		}
	}

	// numerically stable softmax
	floats.AddConst(-floats.Max(scores), scores)
	for i, s := range scores {
		scores[i] = math.Exp(s)
	}
	floats.Scale(1/floats.Sum(scores), scores)
	return scores, nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
