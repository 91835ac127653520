// Package firebase backs the dashboard with Cloud Firestore and verifies
// Firebase ID tokens.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Config selects the Firebase project.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// Client holds the Firebase app and the service clients derived from it.
type Client struct {
	app       *fb.App
	firestore *firestore.Client
	auth      *auth.Client
}

// New initializes the Firebase app. Without a credentials file the
// application default credentials are used.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file not found: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := fb.NewApp(ctx, &fb.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firestore: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("initialize firebase auth: %w", err)
	}

	return &Client{app: app, firestore: fs, auth: authClient}, nil
}

// Close releases the Firestore connection.
func (c *Client) Close() error {
	return c.firestore.Close()
}
