package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/inbound"
	"staffline/internal/messaging"
	"staffline/internal/repo"
	"staffline/internal/scoring"
	"staffline/internal/visibility"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Inbound handles provider webhooks. Nil disables the webhook routes.
	Inbound *inbound.Interpreter
	// AgencyID receives messages posted to the webhook route without an agency.
	AgencyID string
	// Signatures, when set, rejects webhooks whose provider signature does not
	// match PublicURL plus the request path.
	Signatures *messaging.SignatureValidator
	PublicURL  string
	Logger     *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid participant transition NOT_PROPOSED -> VALIDATED"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"NOT_PROPOSED\"}"`
}

type requestKey struct{}
type loggerKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Staffline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
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
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			ctx = context.WithValue(ctx, loggerKey{}, log)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Staffline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCandidates(group, cfg.Engine)
	registerClients(group, cfg.Engine, portalBase(cfg.PublicURL, basePath))
	registerMissions(group, cfg.Engine)
	registerPipelines(group, cfg.Engine)
	registerParticipants(group, cfg.Engine)
	registerScoring(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerPortal(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)
	if cfg.Inbound != nil {
		registerInboundWebhook(router, inboundHandler{
			interp:     cfg.Inbound,
			agencyID:   cfg.AgencyID,
			signatures: cfg.Signatures,
			publicURL:  cfg.PublicURL,
			log:        cfg.Logger,
		})
	}

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

// requestLogger returns the server logger stored on the request context.
func requestLogger(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return log
	}
	return zap.NewNop()
}

func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var nf *engine.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"entity": nf.Entity, "id": nf.ID})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var te *engine.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"entity": te.Entity,
			"from":   te.From,
			"to":     te.To,
		})
	}
	msg := err.Error()
	switch {
	case errors.Is(err, engine.ErrAccessDenied):
		return newAPIError(http.StatusForbidden, "access_denied", "access denied", nil)
	case errors.Is(err, engine.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, engine.ErrInvalid), errors.Is(err, inbound.ErrMissingField):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		requestLogger(ctx).Error("request failed", zap.Error(err))
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

// handlePortalError maps errors for the client portal. Missing entities read
// as access denied and internal errors carry no detail.
func handlePortalError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var te *engine.TransitionError
	switch {
	case errors.Is(err, engine.ErrAccessDenied), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusForbidden, "access_denied", "access denied", nil)
	case errors.As(err, &te):
		return newAPIError(http.StatusConflict, "invalid_transition", "profile is not awaiting a decision", nil)
	case errors.Is(err, engine.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", "a decision was already recorded for this profile", nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
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
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
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
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if publicRoute(basePath, route) {
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
    <title>Staffline API Docs</title>
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

func registerCandidates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-candidate",
		Method:        http.MethodPost,
		Path:          "/candidates",
		Summary:       "Register candidate",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateCandidateRequest `json:"body"`
	}) (*struct {
		Body domain.Candidate `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCandidate(ctx, p.AgencyID, candidateInput(input.Body), p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Candidate `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-candidates",
		Method:      http.MethodGet,
		Path:        "/candidates",
		Summary:     "List candidates",
	}, func(ctx context.Context, input *struct {
		Availability string `query:"availability" enum:"AVAILABLE,BUSY,UNAVAILABLE"`
	}) (*struct {
		Body []domain.Candidate `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListCandidates(ctx, p.AgencyID, domain.Availability(input.Availability))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.Candidate{}
		}
		return &struct {
			Body []domain.Candidate `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-candidate-availability",
		Method:      http.MethodPatch,
		Path:        "/candidates/{id}/availability",
		Summary:     "Set candidate availability",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body AvailabilityRequest `json:"body"`
	}) (*struct {
		Body domain.Candidate `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SetAvailability(ctx, p.AgencyID, input.ID, domain.Availability(input.Body.Availability), p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Candidate `json:"body"`
		}{Body: c}, nil
	})
}

// portalBase is the public prefix of portal links, empty when the server has
// no public URL.
func portalBase(publicURL, basePath string) string {
	publicURL = strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if publicURL == "" {
		return ""
	}
	return publicURL + path.Join(basePath, "portal") + "/"
}

// PortalURL is the link handed to a client for a portal token.
func PortalURL(publicURL, basePath, token string) string {
	base := portalBase(publicURL, basePath)
	if base == "" || token == "" {
		return ""
	}
	return base + token
}

func registerClients(api huma.API, e engine.Engine, portalPrefix string) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/clients",
		Summary:       "Register client company",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateClientRequest `json:"body"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateClient(ctx, p.AgencyID, engine.ClientInput{
			Name:        input.Body.Name,
			ContactName: input.Body.ContactName,
			Email:       input.Body.Email,
			Phone:       input.Body.Phone,
		}, p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Client `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListClients(ctx, p.AgencyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.Client{}
		}
		return &struct {
			Body []domain.Client `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "client-portal-token",
		Method:      http.MethodPost,
		Path:        "/clients/{id}/portal-token",
		Summary:     "Get or rotate the client's portal token",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Rotate bool   `query:"rotate"`
	}) (*struct {
		Body PortalTokenResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		token, err := e.PortalToken(ctx, p.AgencyID, input.ID, input.Rotate, p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := PortalTokenResponse{ClientID: input.ID, Token: token}
		if portalPrefix != "" {
			resp.URL = portalPrefix + token
		}
		return &struct {
			Body PortalTokenResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create mission and its pipeline",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*struct {
		Body CreateMissionResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, pl, err := e.CreateMission(ctx, p.AgencyID, missionInput(input.Body), p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body CreateMissionResponse `json:"body"`
		}{Body: CreateMissionResponse{Mission: m, Pipeline: pl}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
	}) (*struct {
		Body []domain.Mission `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListMissions(ctx, p.AgencyID, input.ClientID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.Mission{}
		}
		return &struct {
			Body []domain.Mission `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.MissionDetail `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		detail, err := e.Mission(ctx, p.AgencyID, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.MissionDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mission",
		Method:      http.MethodPatch,
		Path:        "/missions/{id}",
		Summary:     "Update mission",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateMissionRequest `json:"body"`
	}) (*struct {
		Body domain.Mission `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.UpdateMission(ctx, p.AgencyID, input.ID, missionPatch(input.Body), p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Mission `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-mission",
		Method:        http.MethodDelete,
		Path:          "/missions/{id}",
		Summary:       "Delete mission",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMission(ctx, p.AgencyID, input.ID, p.ActorID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerPipelines(api huma.API, e engine.Engine) {
	type pipelinePath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-pipeline",
		Method:      http.MethodGet,
		Path:        "/pipelines/{id}",
		Summary:     "Get pipeline with participants and quota",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *pipelinePath) (*struct {
		Body engine.PipelineDetail `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		detail, err := e.Pipeline(ctx, p.AgencyID, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.PipelineDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "launch-pipeline",
		Method:      http.MethodPost,
		Path:        "/pipelines/{id}/launch",
		Summary:     "Select candidates and send outreach",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *pipelinePath) (*struct {
		Body LaunchResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Launch(ctx, p.AgencyID, input.ID, p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body LaunchResponse `json:"body"`
		}{Body: launchResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expire-outreach",
		Method:      http.MethodPost,
		Path:        "/pipelines/{id}/expire",
		Summary:     "Mark unanswered outreach as no response",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ExpireRequest `json:"body"`
	}) (*struct {
		Body ExpireResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.ExpireOutreach(ctx, p.AgencyID, input.ID, time.Duration(input.Body.OlderThanHours)*time.Hour, p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ExpireResponse `json:"body"`
		}{Body: ExpireResponse{PipelineID: input.ID, Expired: n}}, nil
	})
}

func registerParticipants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "propose-participant",
		Method:      http.MethodPost,
		Path:        "/participants/{id}/propose",
		Summary:     "Propose a participant to the client",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.ProposeResult `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Propose(ctx, p.AgencyID, input.ID, p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body engine.ProposeResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-participant-visibility",
		Method:      http.MethodPatch,
		Path:        "/participants/{id}/visibility",
		Summary:     "Set how much of the profile the client sees",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body VisibilityRequest `json:"body"`
	}) (*struct {
		Body domain.Participant `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		part, err := e.SetVisibility(ctx, p.AgencyID, input.ID, domain.Visibility(input.Body.Visibility), p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Participant `json:"body"`
		}{Body: part}, nil
	})

	for _, validate := range []bool{true, false} {
		validate := validate
		verb, summary := "refuse", "Record the client's refusal"
		if validate {
			verb, summary = "validate", "Record the client's validation"
		}
		huma.Register(api, huma.Operation{
			OperationID: verb + "-participant",
			Method:      http.MethodPost,
			Path:        "/participants/{id}/" + verb,
			Summary:     summary,
			Errors:      []int{http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			ID   string          `path:"id"`
			Body *DecisionRequest `json:"body,omitempty" required:"false"`
		}) (*struct {
			Body engine.RespondResult `json:"body"`
		}, error) {
			p, authErr := principalFromRequest(ctx)
			if authErr != nil {
				return nil, authErr
			}
			res, err := e.ClientRespond(ctx, p.AgencyID, input.ID, engine.Decision{
				Validate: validate,
				Comment:  input.Body.comment(),
				Source:   "agency",
			}, p.ActorID)
			if err != nil {
				return nil, handleError(ctx, err)
			}
			return &struct {
				Body engine.RespondResult `json:"body"`
			}{Body: res}, nil
		})
	}
}

func registerScoring(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "rank-candidates",
		Method:      http.MethodPost,
		Path:        "/scoring/rank",
		Summary:     "Rank the candidate base against a job description",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body RankRequest `json:"body"`
	}) (*struct {
		Body scoring.Ranking `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ranking, err := e.RankCandidates(ctx, p.AgencyID, engine.RankInput{
			JobDescription: input.Body.JobDescription,
			Rubric:         input.Body.Rubric,
			PresetID:       input.Body.PresetID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if ranking.Results == nil {
			ranking.Results = []scoring.Ranked{}
		}
		return &struct {
			Body scoring.Ranking `json:"body"`
		}{Body: ranking}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-presets",
		Method:      http.MethodGet,
		Path:        "/scoring/presets",
		Summary:     "List scoring presets",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ScoringPreset `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListPresets(ctx, p.AgencyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if items == nil {
			items = []domain.ScoringPreset{}
		}
		return &struct {
			Body []domain.ScoringPreset `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "save-preset",
		Method:        http.MethodPost,
		Path:          "/scoring/presets",
		Summary:       "Save scoring preset",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body PresetRequest `json:"body"`
	}) (*struct {
		Body domain.ScoringPreset `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		preset, err := e.SavePreset(ctx, p.AgencyID, engine.PresetInput{
			Name:      input.Body.Name,
			JobType:   input.Body.JobType,
			Rubric:    input.Body.Rubric,
			IsDefault: input.Body.IsDefault,
		}, p.ActorID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.ScoringPreset `json:"body"`
		}{Body: preset}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-default-preset",
		Method:        http.MethodPost,
		Path:          "/scoring/presets/{id}/default",
		Summary:       "Make a preset the agency default",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetDefaultPreset(ctx, p.AgencyID, input.ID, p.ActorID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-preset",
		Method:        http.MethodDelete,
		Path:          "/scoring/presets/{id}",
		Summary:       "Delete scoring preset",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeletePreset(ctx, p.AgencyID, input.ID, p.ActorID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Agency pipeline statistics",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.PipelineStats `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.Stats(ctx, p.AgencyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.PipelineStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"agency,candidate,client,mission,pipeline,participant,preset,inbound,api_key"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, p.AgencyID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerPortal(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "portal",
		Method:      http.MethodGet,
		Path:        "/portal/{token}",
		Summary:     "Client portal: proposed profiles",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Token string `path:"token"`
	}) (*struct {
		Body engine.PortalView `json:"body"`
	}, error) {
		view, err := e.Portal(ctx, input.Token)
		if err != nil {
			return nil, handlePortalError(err)
		}
		if view.Missions == nil {
			view.Missions = []engine.PortalMission{}
		}
		return &struct {
			Body engine.PortalView `json:"body"`
		}{Body: view}, nil
	})

	for _, validate := range []bool{true, false} {
		validate := validate
		verb := "refuse"
		if validate {
			verb = "validate"
		}
		huma.Register(api, huma.Operation{
			OperationID: "portal-" + verb,
			Method:      http.MethodPost,
			Path:        "/portal/{token}/participants/{id}/" + verb,
			Summary:     "Client portal: " + verb + " a profile",
			Errors:      []int{http.StatusForbidden, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			Token string          `path:"token"`
			ID    string          `path:"id"`
			Body  *DecisionRequest `json:"body,omitempty" required:"false"`
		}) (*struct {
			Body visibility.View `json:"body"`
		}, error) {
			view, err := e.PortalRespond(ctx, input.Token, input.ID, validate, input.Body.comment())
			if err != nil {
				return nil, handlePortalError(err)
			}
			return &struct {
				Body visibility.View `json:"body"`
			}{Body: view}, nil
		})
	}
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
