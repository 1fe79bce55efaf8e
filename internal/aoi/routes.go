package aoi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/aois", ListAOIs)
	r.Post("/aois", CreateAOI)
	r.Put("/aois/{id}", UpdateAOI)
	r.Delete("/aois/{id}", DeleteAOI)
	r.Post("/aois/{id}/analyze", ManualAnalyze)
	r.Get("/aois/{id}/analyses", ListAnalyses)
	r.Get("/aois/{id}/timeseries", Timeseries)
	r.Post("/analyses/{id}/feedback", Feedback)

	return r
}
