// Package devledger is a single-process stand-in for a NYM ledger
// gateway, meant for local development and tests. It keeps the NYM
// table in memory and enforces the same signing rules a real gateway
// would: updates must be signed by the currently published key, first
// registrations by the new key itself.
package devledger

import (
	"context"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/ayrten/wicker/didkey"
	"github.com/ayrten/wicker/internal/helpers"
	"github.com/ayrten/wicker/ledger"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mr-tron/base58"
	slogecho "github.com/samber/slog-echo"
)

type Server struct {
	httpd  *http.Server
	echo   *echo.Echo
	logger *slog.Logger

	mu   sync.Mutex
	nyms map[string]*ledger.NymData
	seq  int64
}

type Args struct {
	Addr   string
	Logger *slog.Logger
}

type customValidator struct {
	validator *validator.Validate
}

func (cv *customValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

func New(args *Args) (*Server, error) {
	if args.Addr == "" {
		args.Addr = ":9702"
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	e := echo.New()
	e.HideBanner = true

	e.Pre(middleware.RemoveTrailingSlash())
	e.Pre(slogecho.New(args.Logger))

	e.Validator = &customValidator{validator: validator.New()}

	s := &Server{
		httpd: &http.Server{
			Addr:    args.Addr,
			Handler: e,
		},
		echo:   e,
		logger: args.Logger,
		nyms:   map[string]*ledger.NymData{},
	}

	e.GET("/", s.handleRoot)
	e.GET("/nym/:did", s.handleGetNym)
	e.POST("/nym", s.handleSubmitNym)

	return s, nil
}

// Handler exposes the router for httptest-driven clients.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting devledger", "addr", s.httpd.Addr)

	go func() {
		if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpd.Shutdown(shutdownCtx)
}

func (s *Server) handleRoot(e echo.Context) error {
	return e.JSON(200, map[string]string{
		"service": "wicker devledger",
	})
}

// handleGetNym returns the published state of a DID. Like a real indy
// ledger, the verkey comes back abbreviated when it extends the DID.
func (s *Server) handleGetNym(e echo.Context) error {
	did := e.Param("did")

	s.mu.Lock()
	nym, ok := s.nyms[did]
	s.mu.Unlock()

	if !ok {
		return helpers.NotFoundError(e, to.StringPtr("NymNotFound"))
	}

	out := *nym
	out.Verkey = didkey.AbbreviateVerkey(did, out.Verkey)

	return e.JSON(200, &out)
}

func (s *Server) handleSubmitNym(e echo.Context) error {
	var req ledger.NymRequest
	if err := e.Bind(&req); err != nil {
		s.logger.Error("error binding nym request", "error", err)
		return helpers.InputError(e, nil)
	}

	if err := e.Validate(&req); err != nil {
		return helpers.InputError(e, nil)
	}

	if req.Signature == "" {
		return helpers.InputError(e, to.StringPtr("MissingSignature"))
	}

	newVerkey := didkey.ExpandVerkey(req.Did, req.Verkey)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Updates must be authorized by the key currently on the ledger;
	// a first registration is self-certified by the submitted key.
	signingVerkey := newVerkey
	if existing, ok := s.nyms[req.Did]; ok {
		signingVerkey = existing.Verkey
	}

	ok, err := verifyRequest(&req, signingVerkey)
	if err != nil {
		s.logger.Error("error verifying nym request", "did", req.Did, "error", err)
		return helpers.InputError(e, to.StringPtr("InvalidSignature"))
	}
	if !ok {
		return helpers.InputError(e, to.StringPtr("InvalidSignature"))
	}

	s.seq++
	s.nyms[req.Did] = &ledger.NymData{
		Did:     req.Did,
		Verkey:  newVerkey,
		SeqNo:   s.seq,
		TxnTime: time.Now().Unix(),
	}

	s.logger.Info("nym written", "did", req.Did, "seq", s.seq)

	return e.JSON(200, map[string]any{
		"seqNo": s.seq,
	})
}

func verifyRequest(req *ledger.NymRequest, verkey string) (bool, error) {
	payload, err := req.SigningBytes()
	if err != nil {
		return false, err
	}

	pub, err := base58.Decode(verkey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false, errors.New("published verkey is not a valid ed25519 key")
	}

	sig, err := base58.Decode(req.Signature)
	if err != nil {
		return false, errors.New("signature is not valid base58")
	}

	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig), nil
}
