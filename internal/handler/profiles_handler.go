package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/mapping"
	"github.com/lendgrid/export-profiles/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Mapping Profile Handlers
// ============================================================

func listProfilesHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /profiles")
		defer span.End()

		isDefault, err := parseBoolQuery(r, "is_default")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		isActive, err := parseBoolQuery(r, "is_active")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		profiles, err := svc.List(ctx, OrgIDFromContext(ctx), domain.ProfileFilter{IsDefault: isDefault, IsActive: isActive})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.MappingProfile]{Data: profiles, Total: len(profiles)})
	}
}

func createProfileHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /profiles")
		defer span.End()

		var req domain.CreateProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Create(ctx, OrgIDFromContext(ctx), UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func getProfileHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /profiles/{id}")
		defer span.End()

		p, err := svc.Get(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func updateProfileHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /profiles/{id}")
		defer span.End()

		var upd domain.ProfileUpdate
		if err := decodeJSON(r, &upd); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.Update(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "id"), &upd)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func deleteProfileHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /profiles/{id}")
		defer span.End()

		res, err := svc.Delete(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.Bool("org.has_default", res.OrgHasDefault),
			attribute.Bool("org.default_unknown", res.DefaultUnknown),
		)
		writeJSON(w, http.StatusOK, res)
	}
}

func duplicateProfileHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /profiles/{id}/duplicate")
		defer span.End()

		p, err := svc.Duplicate(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "id"), UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func setActiveHandler(svc *service.ProfileService, active bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /profiles/{id}/activation")
		defer span.End()
		span.SetAttributes(attribute.Bool("active", active))

		p, err := svc.SetActive(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "id"), active)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func setDefaultHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /profiles/{id}/default")
		defer span.End()

		p, err := svc.SetDefault(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func clearDefaultHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /profiles/{id}/default")
		defer span.End()

		p, err := svc.ClearDefault(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ============================================================
// Mapping documents
// ============================================================

func exportMappingHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /profiles/{id}/mapping")
		defer span.End()

		doc, err := svc.ExportDocument(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeDocument(w, doc, r.URL.Query().Get("format"), logger)
	}
}

func importMappingHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /profiles/{id}/mapping")
		defer span.End()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		doc, err := mapping.Decode(body, documentFormat(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.ImportDocument(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "id"), doc)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// documentFormat picks the import format from ?format= or the Content-Type.
func documentFormat(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return f
	}
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "yaml") {
		return mapping.FormatYAML
	}
	return mapping.FormatJSON
}

// ============================================================
// Resolution
// ============================================================

func resolveHandler(resolver *service.Resolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /resolve")
		defer span.End()

		resolved, err := resolver.Resolve(ctx, OrgIDFromContext(ctx), r.URL.Query().Get("profile_id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resolved)
	}
}
