// Package api exposes the DriveLocker services over HTTP.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/files"
	"github.com/jmcleod/drivelocker/notes"
	"github.com/jmcleod/drivelocker/otp"
	"github.com/jmcleod/drivelocker/passkey"
	"github.com/jmcleod/drivelocker/token"
)

// Services are the domain services the handlers call into.
type Services struct {
	Accounts  *account.Service
	OTP       *otp.Engine
	Passkeys  *passkey.Gate
	Files     *files.Service
	Notes     *notes.Service
	Tokens    *token.Service
	Validator *token.Validator
}

// API holds the dependencies needed by the REST handlers.
type API struct {
	accounts  *account.Service
	otp       *otp.Engine
	passkeys  *passkey.Gate
	files     *files.Service
	notes     *notes.Service
	tokens    *token.Service
	validator *token.Validator
	security  SecurityConfig
	logger    *slog.Logger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithSecurityConfig sets the public paths, cookie policy and CORS origins.
// If not set, DefaultSecurityConfig(EnvProduction) is used.
func WithSecurityConfig(cfg SecurityConfig) Option {
	return func(a *API) {
		a.security = cfg
	}
}

// New creates a new API instance.
func New(svc Services, opts ...Option) *API {
	a := &API{
		accounts:  svc.Accounts,
		otp:       svc.OTP,
		passkeys:  svc.Passkeys,
		files:     svc.Files,
		notes:     svc.Notes,
		tokens:    svc.Tokens,
		validator: svc.Validator,
		security:  DefaultSecurityConfig(EnvProduction),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.logger = a.logger.With(slog.String("component", "api"))
	return a
}

// Router returns a chi.Router with all API routes mounted. Every request
// passes through AuthMiddleware, which lets public paths through.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	if h := a.security.corsHandler(); h != nil {
		r.Use(h)
	}
	r.Use(a.AuthMiddleware)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(SecurityHeaders)

		r.Get("/", a.Root)

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", a.Register)
			r.Get("/profile", a.Profile)
			r.Post("/add-passkey", a.AddPasskey)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", a.Login)
			r.Post("/logout", a.Logout)
			r.Get("/is-authenticated", a.IsAuthenticated)
			r.Post("/send-otp", a.SendVerifyOTP)
			r.Post("/verify-email", a.VerifyEmail)
			r.Post("/send-reset-otp", a.SendResetOTP)
			r.Post("/reset-password", a.ResetPassword)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", a.ListFiles)
			r.Post("/upload-file", a.UploadFile)
			r.Delete("/delete-files", a.DeleteFiles)
		})

		r.Route("/notes", func(r chi.Router) {
			r.Post("/create-notes", a.CreateNote)
			r.Get("/get-notes", a.ListNotes)
			r.Put("/update-notes", a.UpdateNote)
			r.Delete("/delete-notes", a.DeleteNotes)
		})
	})

	return r
}

// Root handles GET /.
func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "DriveLocker API is running"})
}
