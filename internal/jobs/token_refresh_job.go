package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	config "github.com/postpilothq/postpilot/configs"
	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/internal/service"
	"github.com/postpilothq/postpilot/pkg/utils"
	"golang.org/x/oauth2"
)

// TokenRefreshJob refreshes connection tokens that expire soon, so the
// dispatcher rarely sees a token_expired failure for accounts that still
// have a valid refresh grant.
type TokenRefreshJob struct {
	cfg     config.Config
	cr      repository.ConnectionRepository
	creds   service.CredentialResolver
	configs map[string]*oauth2.Config
}

func NewTokenRefreshJob(cfg config.Config, cr repository.ConnectionRepository, creds service.CredentialResolver) *TokenRefreshJob {
	return &TokenRefreshJob{
		cfg:   cfg,
		cr:    cr,
		creds: creds,
		configs: map[string]*oauth2.Config{
			"linkedin": {
				ClientID:     cfg.LinkedinClientID,
				ClientSecret: cfg.LinkedinClientSecret,
				RedirectURL:  cfg.LinkedinRedirectURI,
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://www.linkedin.com/oauth/v2/authorization",
					TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
				},
			},
			"instagram": {
				ClientID:     cfg.InstagramClientID,
				ClientSecret: cfg.InstagramClientSecret,
				RedirectURL:  cfg.InstagramRedirectURI,
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://api.instagram.com/oauth/authorize",
					TokenURL: "https://api.instagram.com/oauth/access_token",
				},
			},
		},
	}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	now := time.Now()
	connections, err := j.cr.ListExpiringBetween(ctx, now, now.Add(30*time.Minute))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 10)

	for _, conn := range connections {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(conn *models.Connection) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := j.refresh(ctx, conn); err != nil {
				slog.Info("unable to refresh connection token",
					"connection_id", conn.ID, "platform", conn.Platform, "error", err.Error())
			}
		}(conn)
	}

	wg.Wait()
}

func (j *TokenRefreshJob) refresh(ctx context.Context, conn *models.Connection) error {
	oauthCfg, ok := j.configs[conn.Platform]
	if !ok {
		slog.Info("no oauth config for platform", "platform", conn.Platform)
		return nil
	}

	refreshToken, err := j.creds.ResolveRefresh(conn)
	if err != nil {
		return err
	}

	source := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return err
	}

	encryptedAccess, err := utils.Encrypt([]byte(token.AccessToken), []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	newRefresh := token.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	encryptedRefresh, err := utils.Encrypt([]byte(newRefresh), []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	return j.cr.SetTokens(ctx, conn.ID, encryptedAccess, encryptedRefresh, token.Expiry)
}
