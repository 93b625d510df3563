package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/domain"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/engine"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/places"
	"github.com/hikaruusa1016-cmyk/date-ai.v2/internal/repo"
)

const defaultGenerateTimeout = 5 * time.Second

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
	// GenerateTimeout is the wall budget for one plan build before the
	// handler falls back to the offline path. Zero means 5 seconds.
	GenerateTimeout time.Duration
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"venue not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope shared by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the date-plan API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaultGenerateTimeout
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Date Plan API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAreas(group, cfg.Engine)
	registerPlans(group, cfg)
	registerVenues(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) || errors.Is(err, places.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Date Plan API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAreas(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-areas",
		Method:      http.MethodGet,
		Path:        "/areas",
		Summary:     "List configured date areas",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AreaResponse `json:"body"`
	}, error) {
		return &struct {
			Body []AreaResponse `json:"body"`
		}{Body: areaResponses(e.Config)}, nil
	})
}

func registerPlans(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID: "generate-plan",
		Method:      http.MethodPost,
		Path:        "/plans/generate",
		Summary:     "Generate a date plan",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body GeneratePlanRequest `json:"body"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		if input.Body.Area == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "area is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cond := input.Body.conditions()
		cond.Movement = movementFromConfig(e.Config, input.Body.Movement)

		genCtx, cancel := context.WithTimeout(ctx, cfg.GenerateTimeout)
		plan, err := e.BuildPlan(genCtx, cond, input.Body.Adjustment, engine.BuildOptions{
			AllowExternal: true,
			ActorID:       actorID,
		})
		// Read the deadline state before cancel() sets Err to Canceled.
		overran := errors.Is(genCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err != nil || overran {
			// The external build overran its budget (or failed outright);
			// rebuild from local data only, which cannot block.
			if err != nil {
				log.Printf("[server] external plan build failed: %v", err)
			} else {
				log.Printf("[server] plan build exceeded %s, rebuilding offline", cfg.GenerateTimeout)
			}
			plan, err = e.BuildPlan(ctx, cond, input.Body.Adjustment, engine.BuildOptions{
				AllowExternal: false,
				ActorID:       actorID,
			})
			if err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: PlanResponse{Plan: *plan}}, nil
	})
}

func registerVenues(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "venue-alternatives",
		Method:      http.MethodPost,
		Path:        "/venues/alternatives",
		Summary:     "Alternative venues for one schedule slot",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body AlternativesRequest `json:"body"`
	}) (*struct {
		Body VenueListResponse `json:"body"`
	}, error) {
		if input.Body.Category == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "category is required", nil)
		}
		cond := domain.Conditions{
			Area:     input.Body.Area,
			Phase:    domain.ParsePhase(input.Body.Phase),
			Budget:   domain.ParseBudget(input.Body.Budget),
			TimeSlot: domain.ParseTimeSlot(input.Body.TimeSlot),
			Mood:     domain.Mood(input.Body.Mood),
		}
		items, err := e.ListAlternatives(ctx, cond, input.Body.Category, input.Body.Exclude, input.Body.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VenueListResponse `json:"body"`
		}{Body: VenueListResponse{Items: nonNilVenues(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "venue-search",
		Method:      http.MethodPost,
		Path:        "/venues/search",
		Summary:     "Free-text venue search",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body VenueSearchRequest `json:"body"`
	}) (*struct {
		Body VenueResponse `json:"body"`
	}, error) {
		if input.Body.Query == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "query is required", nil)
		}
		location := input.Body.Location
		if location == "" {
			if _, a, ok := e.Config.ResolveArea(e.Config.Service.DefaultArea); ok {
				location = a.Label
			}
		}
		if e.Search != nil {
			v, err := e.Search.SearchText(ctx, input.Body.Query, location, places.SearchOptions{
				Budget:   domain.ParseBudget(input.Body.Budget),
				Phase:    domain.ParsePhase(input.Body.Phase),
				TimeSlot: input.Body.TimeSlot,
				Category: input.Body.Category,
			})
			if err == nil {
				return &struct {
					Body VenueResponse `json:"body"`
				}{Body: VenueResponse{Venue: *v, Source: "provider"}}, nil
			}
			log.Printf("[server] venue search %q: %v", input.Body.Query, err)
		}
		return &struct {
			Body VenueResponse `json:"body"`
		}{Body: VenueResponse{Venue: fallbackVenue(input.Body.Query, location), Source: "fallback"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "venue-detail",
		Method:      http.MethodPost,
		Path:        "/venues/detail",
		Summary:     "Venue detail by provider place id",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body VenueDetailRequest `json:"body"`
	}) (*struct {
		Body VenueResponse `json:"body"`
	}, error) {
		if input.Body.PlaceID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "place_id is required", nil)
		}
		if e.Details != nil {
			v, err := e.Details.PlaceDetails(ctx, input.Body.PlaceID)
			if err == nil {
				return &struct {
					Body VenueResponse `json:"body"`
				}{Body: VenueResponse{Venue: *v, Source: "provider"}}, nil
			}
			if errors.Is(err, places.ErrNotFound) {
				return nil, handleError(err)
			}
			log.Printf("[server] venue detail %q: %v", input.Body.PlaceID, err)
		}
		return &struct {
			Body VenueResponse `json:"body"`
		}{Body: VenueResponse{Venue: domain.Venue{ID: input.Body.PlaceID}, Source: "fallback"}}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent plan-generation events",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Type  string `query:"type"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: paginatedEvents{Items: items}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
