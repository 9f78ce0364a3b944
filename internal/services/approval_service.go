// internal/services/approval_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/models"
)

const licenceURLExpiry = 15 * time.Minute

type ApprovalService struct {
	db      *gorm.DB
	storage *StorageService
}

// LicenceDownload holds either a presigned URL or the document itself.
type LicenceDownload struct {
	Filename string
	URL      string
	Data     []byte
}

func NewApprovalService(db *gorm.DB, storage *StorageService) *ApprovalService {
	return &ApprovalService{db: db, storage: storage}
}

func (s *ApprovalService) Get(ctx context.Context, id uint) (*models.Approval, error) {
	var approval models.Approval
	err := s.db.WithContext(ctx).Preload("Applicant").Preload("CurrentProposal").First(&approval, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: approval %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &approval, nil
}

// Licence returns the current licence document of an approval.
func (s *ApprovalService) Licence(ctx context.Context, id uint) (*LicenceDownload, error) {
	approval, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if approval.LicenceDocument == "" {
		return nil, fmt.Errorf("%w: approval %d has no licence document", ErrNotFound, id)
	}

	download := &LicenceDownload{Filename: fmt.Sprintf("licence-%d.pdf", approval.ID)}
	if approval.CurrentProposal != nil {
		download.Filename = fmt.Sprintf("licence-%s.pdf", approval.CurrentProposal.LodgementNumber)
	}

	if s.storage.Remote() {
		url, err := s.storage.GeneratePresignedURL(ctx, approval.LicenceDocument, licenceURLExpiry)
		if err != nil {
			return nil, err
		}
		download.URL = url
		return download, nil
	}

	data, err := s.storage.Get(ctx, approval.LicenceDocument)
	if err != nil {
		return nil, err
	}
	download.Data = data
	return download, nil
}
