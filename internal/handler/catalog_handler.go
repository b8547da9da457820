package handler

import (
	"net/http"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/mapping"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Catalog Handlers
// ============================================================

type catalogResponse struct {
	CoreFields      []mapping.CoreField                 `json:"core_fields"`
	ExtensionFields map[string][]mapping.ExtensionField `json:"extension_fields"`
	ValidationRules []mapping.RuleDescriptor            `json:"validation_rules"`
}

func listPlatformsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /platforms")
		defer span.End()

		platforms := mapping.Platforms()
		writeJSON(w, http.StatusOK, domain.ListResponse[mapping.Platform]{Data: platforms, Total: len(platforms)})
	}
}

func platformDefaultsHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /platforms/{platform}/defaults")
		defer span.End()

		doc, err := mapping.DefaultDocument(chi.URLParam(r, "platform"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeDocument(w, doc, r.URL.Query().Get("format"), logger)
	}
}

func catalogHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /catalog")
		defer span.End()

		ext := make(map[string][]mapping.ExtensionField)
		for _, p := range mapping.Platforms() {
			fields, _ := mapping.ExtensionFields(p.Key)
			ext[p.Key] = fields
		}
		writeJSON(w, http.StatusOK, catalogResponse{
			CoreFields:      mapping.CoreFields(),
			ExtensionFields: ext,
			ValidationRules: mapping.RuleDescriptors(),
		})
	}
}

// writeDocument renders a mapping document as JSON or YAML text.
func writeDocument(w http.ResponseWriter, doc *mapping.Document, format string, logger *zap.Logger) {
	body, contentType, err := mapping.Encode(doc, format)
	if err != nil {
		handleServiceError(w, err, logger)
		return
	}
	w.Header().Set("Content-Type", contentType+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
