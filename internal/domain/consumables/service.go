package consumables

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/prettyneat-io/pumpfleet/internal/config"
	"github.com/prettyneat-io/pumpfleet/internal/domain/patient"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
)

// PatientLookup is satisfied by *patient.Service.
type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	allocations Repository
	patients    PatientLookup
	cfg         config.Pumps
}

func NewService(allocations Repository, patients PatientLookup, cfg config.Pumps) *Service {
	return &Service{allocations: allocations, patients: patients, cfg: cfg}
}

// CreateInput carries a new allocation. Nil quantities take the configured
// defaults.
type CreateInput struct {
	PatientID    uuid.UUID
	Month        int
	Year         int
	AllocatedQty *int
	UsedQty      int
	Threshold    *int
}

func validate(a *Allocation) error {
	if a.Month < 1 || a.Month > 12 {
		return apperr.Validation("Month must be between 1 and 12.")
	}
	if a.Year < 2000 || a.Year > 9999 {
		return apperr.Validation("Year %d is out of range.", a.Year)
	}
	if a.AllocatedQty < 0 || a.UsedQty < 0 {
		return apperr.Validation("Quantities cannot be negative.")
	}
	if a.Threshold <= 0 {
		return apperr.Validation("Threshold must be a positive integer.")
	}
	if a.Threshold <= a.AllocatedQty {
		return apperr.Validation("The Critical Threshold must always be greater than the Allocated Quantity.")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Allocation, error) {
	a := &Allocation{
		PatientID:    in.PatientID,
		Month:        in.Month,
		Year:         in.Year,
		AllocatedQty: s.cfg.DefaultAllocatedQty,
		UsedQty:      in.UsedQty,
		Threshold:    s.cfg.DefaultThreshold,
	}
	if in.AllocatedQty != nil {
		a.AllocatedQty = *in.AllocatedQty
	}
	if in.Threshold != nil {
		a.Threshold = *in.Threshold
	}
	if a.Year == 0 {
		a.Year = time.Now().Year()
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	if _, err := s.patients.GetPatient(ctx, a.PatientID); err != nil {
		return nil, err
	}
	existing, _, err := s.allocations.List(ctx, Filter{PatientID: &a.PatientID, Year: a.Year, Month: a.Month}, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, duplicatePeriod()
	}
	a.refreshStatus()
	if err := s.allocations.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Allocation, error) {
	return s.allocations.GetByID(ctx, id)
}

// UpdateUsage records how many consumables were used in the month.
func (s *Service) UpdateUsage(ctx context.Context, id uuid.UUID, used int) (*Allocation, error) {
	a, err := s.allocations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.UsedQty = used
	return a, s.save(ctx, a)
}

// UpdateAllocation changes the allocated quantity and threshold. Nil
// values keep the stored ones.
func (s *Service) UpdateAllocation(ctx context.Context, id uuid.UUID, allocated, threshold *int) (*Allocation, error) {
	a, err := s.allocations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if allocated != nil {
		a.AllocatedQty = *allocated
	}
	if threshold != nil {
		a.Threshold = *threshold
	}
	return a, s.save(ctx, a)
}

func (s *Service) save(ctx context.Context, a *Allocation) error {
	if err := validate(a); err != nil {
		return err
	}
	a.refreshStatus()
	return s.allocations.Update(ctx, a)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.allocations.GetByID(ctx, id); err != nil {
		return err
	}
	return s.allocations.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Allocation, int, error) {
	return s.allocations.List(ctx, f, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Allocation, int, error) {
	return s.allocations.List(ctx, Filter{PatientID: &patientID}, limit, offset)
}

func (s *Service) ListByPeriod(ctx context.Context, year, month int, limit, offset int) ([]*Allocation, int, error) {
	return s.allocations.List(ctx, Filter{Year: year, Month: month}, limit, offset)
}

// Preview returns the advisory shown when more consumables are allocated
// than the threshold, or nil. Warnings can be switched off in
// configuration.
func (s *Service) Preview(allocated, threshold int) *Warning {
	if !s.cfg.EnableThresholdWarnings || threshold <= 0 || allocated <= threshold {
		return nil
	}
	return &Warning{
		Title:   "Charge for additional pumps",
		Message: fmt.Sprintf("More than %d consumables allocated. Additional charges may apply.", threshold),
	}
}

var exportHeaders = []interface{}{
	"Patient ID", "Patient", "Month", "Year", "Allocated", "Used", "Threshold", "Status",
}

// ExportXLSX writes the allocations of one period as a spreadsheet.
func (s *Service) ExportXLSX(ctx context.Context, w io.Writer, year, month int) error {
	if month < 1 || month > 12 {
		return apperr.Validation("Month must be between 1 and 12.")
	}
	items, _, err := s.allocations.List(ctx, Filter{Year: year, Month: month}, 0, 0)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := fmt.Sprintf("%s %d", time.Month(month).String(), year)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	f.SetCellStyle(sheet, "A1", "H1", style)

	names := make(map[uuid.UUID]*patient.Patient)
	for i, a := range items {
		p, ok := names[a.PatientID]
		if !ok {
			p, err = s.patients.GetPatient(ctx, a.PatientID)
			if err != nil {
				return err
			}
			names[a.PatientID] = p
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			p.InternalID, p.Name, time.Month(a.Month).String(), a.Year,
			a.AllocatedQty, a.UsedQty, a.Threshold, a.Status,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	f.SetColWidth(sheet, "B", "B", 30)
	f.SetColWidth(sheet, "C", "C", 12)

	return f.Write(w)
}
