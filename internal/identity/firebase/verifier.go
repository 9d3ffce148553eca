package firebase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/obs"
)

type Config struct {
	CredentialsFile string
	ProjectID       string
	VerifyTimeout   time.Duration
	CheckRevoked    bool
}

// tokenVerifier is the subset of *auth.Client the verifier needs.
type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*fbauth.Token, error)
}

type Verifier struct {
	client       tokenVerifier
	timeout      time.Duration
	checkRevoked bool
	log          *zap.Logger
}

var _ domainauth.IdentityVerifier = (*Verifier)(nil)

// New initialises the Admin SDK once; the returned verifier is shared by all requests.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Verifier, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbcfg *firebase.Config
	if cfg.ProjectID != "" {
		fbcfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbcfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return newVerifier(client, cfg, log), nil
}

func newVerifier(client tokenVerifier, cfg Config, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		client:       client,
		timeout:      cfg.VerifyTimeout,
		checkRevoked: cfg.CheckRevoked,
		log:          log.With(zap.String("component", "identity.firebase")),
	}
}

// Verify collapses every provider-side failure into ErrInvalidIdentity.
func (v *Verifier) Verify(ctx context.Context, providerToken string) (*domainauth.Identity, error) {
	if strings.TrimSpace(providerToken) == "" {
		return nil, domainauth.ErrInvalidIdentity
	}

	ctx, span := otel.Tracer("identity.firebase").Start(ctx, "firebase.verify_id_token")
	defer span.End()

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	var (
		tok *fbauth.Token
		err error
	)
	if v.checkRevoked {
		tok, err = v.client.VerifyIDTokenAndCheckRevoked(ctx, providerToken)
	} else {
		tok, err = v.client.VerifyIDToken(ctx, providerToken)
	}
	if err != nil {
		span.RecordError(err)
		obs.WithTrace(ctx, v.log).Info("provider token rejected", zap.Error(err),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)))
		return nil, domainauth.ErrInvalidIdentity
	}

	email, _ := tok.Claims["email"].(string)
	if tok.UID == "" || strings.TrimSpace(email) == "" {
		obs.WithTrace(ctx, v.log).Info("provider token lacks uid or email", zap.String("uid", tok.UID))
		return nil, domainauth.ErrInvalidIdentity
	}
	return &domainauth.Identity{SubjectID: tok.UID, Email: email}, nil
}
