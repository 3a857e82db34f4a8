package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/josh-kwaku/wallet-transfer-engine/internal/domain"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/fx"
	"github.com/josh-kwaku/wallet-transfer-engine/internal/logging"
)

// mock-fx serves the exchangerate-api pair endpoint from the static rate
// table so FX_PROVIDER=remote can run locally.
func main() {
	logging.Init("mock-fx", "info", os.Getenv("APP_ENV"))

	rates := fx.NewStaticRates()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /{key}/pair/{from}/{to}", func(w http.ResponseWriter, r *http.Request) {
		from, to := domain.Currency(r.PathValue("from")), domain.Currency(r.PathValue("to"))
		if !from.IsValid() || !to.IsValid() {
			writeJSON(w, http.StatusNotFound, map[string]string{"result": "error", "error-type": "unsupported-code"})
			return
		}

		rate, err := rates.MidRate(r.Context(), from, to)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"result": "error", "error-type": "unsupported-code"})
			return
		}

		slog.Info("rate served", "from", from, "to", to, "rate", rate)
		writeJSON(w, http.StatusOK, map[string]any{
			"result":          "success",
			"base_code":       from,
			"target_code":     to,
			"conversion_rate": json.Number(rate.String()),
		})
	})

	addr := ":8081"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	slog.Info("mock fx provider started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
