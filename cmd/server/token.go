// cmd/server/token.go
package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/database"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

// tokenCommand mints a bearer token for a local user. Outside development the
// identity provider issues tokens instead.
var tokenCommand = &cli.Command{
	Name:      "token",
	Usage:     "Issue a development bearer token for a user",
	ArgsUsage: "<email>",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "ttl",
			Usage: "Token lifetime",
			Value: 24 * time.Hour,
		},
	},
	Action: func(c *cli.Context) error {
		email := strings.ToLower(strings.TrimSpace(c.Args().First()))
		if email == "" {
			return errors.New("an email address is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Environment == "production" {
			return errors.New("tokens cannot be issued in production")
		}

		db, err := database.Initialize(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		var user models.User
		if err := db.Where("email = ?", email).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no user with email %s", email)
			}
			return err
		}

		ttl := c.Duration("ttl")
		if ttl <= 0 {
			return errors.New("ttl must be positive")
		}
		utils.SetJWTSecret(cfg.JWT.SecretKey)
		utils.SetJWTIssuer(cfg.JWT.Issuer)
		token, err := utils.GenerateJWT(user.ID, user.Email, user.IsStaff, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, token)
		return nil
	},
}
