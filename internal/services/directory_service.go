// internal/services/directory_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/config"
	"github.com/javajoker/wildlife-licensing/internal/models"
)

const msgNotDepartmentMember = "The user you want to send the referral to is not a member of the department"

// Directory finds the local user for an email, creating it from the department directory when needed.
type Directory interface {
	ResolveOrCreate(tx *gorm.DB, email string) (*models.User, error)
}

type DepartmentUser struct {
	Email     string `json:"email"`
	GivenName string `json:"given_name"`
	Surname   string `json:"surname"`
}

type DirectoryService struct {
	client *http.Client
	config config.DirectoryConfig
}

func NewDirectoryService(cfg config.DirectoryConfig) *DirectoryService {
	return &DirectoryService{
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		config: cfg,
	}
}

func (s *DirectoryService) ResolveOrCreate(tx *gorm.DB, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, validationError("An email address is required")
	}

	var user models.User
	err := tx.Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	found, err := s.Lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, validationError(msgNotDepartmentMember)
	}

	user = models.User{
		Email:     strings.ToLower(found.Email),
		FirstName: found.GivenName,
		LastName:  found.Surname,
		IsStaff:   true,
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logrus.WithField("email", user.Email).Info("Created user from department directory")
	return &user, nil
}

// Lookup queries the department directory. It returns nil when the email is not a department member.
func (s *DirectoryService) Lookup(ctx context.Context, email string) (*DepartmentUser, error) {
	if s.config.BaseURL == "" {
		return nil, nil
	}

	endpoint := strings.TrimRight(s.config.BaseURL, "/") + "/users?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("department directory unavailable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("department directory returned %s", resp.Status)
	}

	var users []DepartmentUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}
