// internal/services/document_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/javajoker/wildlife-licensing/internal/models"
)

// DocumentGenerator renders and stores the licence document for an approval.
type DocumentGenerator interface {
	GenerateLicence(ctx context.Context, approval *models.Approval, p *models.Proposal, requirements []models.Requirement) (key string, pdf []byte, err error)
}

type DocumentService struct {
	storage *StorageService
}

func NewDocumentService(storage *StorageService) *DocumentService {
	return &DocumentService{storage: storage}
}

func (s *DocumentService) GenerateLicence(ctx context.Context, approval *models.Approval, p *models.Proposal, requirements []models.Requirement) (string, []byte, error) {
	data, err := renderLicence(approval, p, requirements)
	if err != nil {
		return "", nil, fmt.Errorf("failed to render licence: %w", err)
	}

	key := s.storage.generateKey(fmt.Sprintf("approvals/%d", approval.ID), fmt.Sprintf("licence-%s.pdf", p.LodgementNumber))
	if _, err := s.storage.Put(ctx, key, "application/pdf", data); err != nil {
		return "", nil, err
	}
	return key, data, nil
}

func renderLicence(approval *models.Approval, p *models.Proposal, requirements []models.Requirement) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Licence %d", approval.ID), true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Generated %s", time.Now().UTC().Format(time.RFC3339)), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Licence", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 8, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 8, tr(value), "", "L", false)
	}

	applicant := ""
	if p.Applicant != nil {
		applicant = p.Applicant.Name
	}
	field("Licence number:", fmt.Sprintf("L%06d", approval.ID))
	field("Proposal:", p.Reference())
	field("Licence holder:", applicant)
	field("Title:", approval.Title)
	field("Activity:", approval.Activity)
	field("Region:", approval.Region)
	if approval.Tenure != "" {
		field("Tenure:", approval.Tenure)
	}
	field("Issued:", approval.IssueDate.Format("02 January 2006"))
	field("Valid from:", approval.StartDate.Format("02 January 2006"))
	field("Expires:", approval.ExpiryDate.Format("02 January 2006"))

	if details := p.ProposedIssuanceApproval.Data().Details; details != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(details), "", "L", false)
	}

	if len(requirements) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 10, "Conditions", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		for i, req := range requirements {
			line := fmt.Sprintf("%d. %s", i+1, req.Text())
			if req.DueDate != nil {
				line += fmt.Sprintf(" (due %s)", req.DueDate.Format("02/01/2006"))
			}
			pdf.MultiCell(0, 6, tr(line), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
