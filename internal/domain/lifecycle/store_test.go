package lifecycle

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prettyneat-io/pumpfleet/internal/config"
	"github.com/prettyneat-io/pumpfleet/internal/domain/activity"
	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
	"github.com/prettyneat-io/pumpfleet/internal/domain/inventory"
	"github.com/prettyneat-io/pumpfleet/internal/domain/ledger"
	"github.com/prettyneat-io/pumpfleet/internal/domain/patient"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/locker"
)

// memStore holds every record the engine touches so a failed transaction
// can be rolled back by restoring a snapshot.
type memStore struct {
	products  map[uuid.UUID]equipment.Product
	units     map[uuid.UUID]equipment.Unit
	patients  map[uuid.UUID]patient.Patient
	entries   []ledger.Entry
	notes     []activity.Note
	reminders []activity.Reminder
	locations map[uuid.UUID]inventory.Location
	movements []inventory.Movement

	failMovements bool
}

func newMemStore() *memStore {
	return &memStore{
		products:  make(map[uuid.UUID]equipment.Product),
		units:     make(map[uuid.UUID]equipment.Unit),
		patients:  make(map[uuid.UUID]patient.Patient),
		locations: make(map[uuid.UUID]inventory.Location),
	}
}

func (s *memStore) snapshot() memStore {
	c := *s
	c.products = make(map[uuid.UUID]equipment.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.units = make(map[uuid.UUID]equipment.Unit, len(s.units))
	for k, v := range s.units {
		c.units[k] = v
	}
	c.patients = make(map[uuid.UUID]patient.Patient, len(s.patients))
	for k, v := range s.patients {
		c.patients[k] = v
	}
	c.locations = make(map[uuid.UUID]inventory.Location, len(s.locations))
	for k, v := range s.locations {
		c.locations[k] = v
	}
	c.entries = append([]ledger.Entry(nil), s.entries...)
	c.notes = append([]activity.Note(nil), s.notes...)
	c.reminders = append([]activity.Reminder(nil), s.reminders...)
	c.movements = append([]inventory.Movement(nil), s.movements...)
	return c
}

// snapshotTx restores the store when fn fails. Nested calls behave like
// savepoints.
type snapshotTx struct{ s *memStore }

func (t snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.s.snapshot()
	if err := fn(ctx); err != nil {
		*t.s = snap
		return err
	}
	return nil
}

// -- equipment --

type productRepo struct{ s *memStore }

func (r productRepo) Create(_ context.Context, p *equipment.Product) error {
	p.ID = uuid.New()
	r.s.products[p.ID] = *p
	return nil
}

func (r productRepo) GetByID(_ context.Context, id uuid.UUID) (*equipment.Product, error) {
	p, ok := r.s.products[id]
	if !ok {
		return nil, apperr.NotFound("Product %s not found.", id)
	}
	return &p, nil
}

func (r productRepo) Update(_ context.Context, p *equipment.Product) error {
	r.s.products[p.ID] = *p
	return nil
}

func (r productRepo) List(context.Context, int, int) ([]*equipment.Product, int, error) {
	return nil, 0, nil
}

type unitRepo struct{ s *memStore }

func (r unitRepo) Create(_ context.Context, u *equipment.Unit) error {
	u.ID = uuid.New()
	r.s.units[u.ID] = *u
	return nil
}

func (r unitRepo) GetByID(_ context.Context, id uuid.UUID) (*equipment.Unit, error) {
	u, ok := r.s.units[id]
	if !ok {
		return nil, apperr.NotFound("Equipment %s not found.", id)
	}
	return &u, nil
}

func (r unitRepo) GetBySerial(_ context.Context, serial string) (*equipment.Unit, error) {
	for _, u := range r.s.units {
		if strings.EqualFold(u.SerialNumber, serial) {
			c := u
			return &c, nil
		}
	}
	return nil, apperr.NotFound("Equipment SN %s not found.", serial)
}

func (r unitRepo) Update(_ context.Context, u *equipment.Unit) error {
	if _, ok := r.s.units[u.ID]; !ok {
		return apperr.NotFound("Equipment %s not found.", u.ID)
	}
	if u.State == equipment.StateAssigned && u.AssignedPatientID != nil {
		for id, o := range r.s.units {
			if id != u.ID && o.IsAssignedAs(u.RoleValue()) && o.AssignedPatientID != nil && *o.AssignedPatientID == *u.AssignedPatientID {
				return apperr.Conflict("equipment_unit_patient_role_uniq")
			}
		}
	}
	r.s.units[u.ID] = *u
	return nil
}

func (r unitRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.s.units, id)
	return nil
}

func (r unitRepo) Search(context.Context, equipment.SearchParams, int, int) ([]*equipment.Unit, int, error) {
	return nil, 0, nil
}

func (r unitRepo) CountAssigned(_ context.Context, patientID uuid.UUID, role string, excludeID uuid.UUID) (int, error) {
	n := 0
	for id, u := range r.s.units {
		if id != excludeID && u.IsAssignedAs(role) && u.AssignedPatientID != nil && *u.AssignedPatientID == patientID {
			n++
		}
	}
	return n, nil
}

func (r unitRepo) ListDueForReplacement(_ context.Context, from, to time.Time) ([]*equipment.Unit, error) {
	var out []*equipment.Unit
	for _, u := range r.s.units {
		if u.State != equipment.StateAssigned || !u.IsPumpDevice || u.ReplacementDate == nil {
			continue
		}
		if u.ReplacementDate.Before(from) || u.ReplacementDate.After(to) {
			continue
		}
		c := u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

// -- patient --

type patientRepo struct{ s *memStore }

func (r patientRepo) Create(_ context.Context, p *patient.Patient) error {
	p.ID = uuid.New()
	r.s.patients[p.ID] = *p
	return nil
}

func (r patientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := r.s.patients[id]
	if !ok {
		return nil, apperr.NotFound("Patient %s not found.", id)
	}
	return &p, nil
}

func (r patientRepo) GetByInternalID(_ context.Context, internalID string) (*patient.Patient, error) {
	for _, p := range r.s.patients {
		if p.InternalID == internalID {
			c := p
			return &c, nil
		}
	}
	return nil, apperr.NotFound("Patient ID %s not found.", internalID)
}

func (r patientRepo) Update(_ context.Context, p *patient.Patient) error {
	if _, ok := r.s.patients[p.ID]; !ok {
		return apperr.NotFound("Patient %s not found.", p.ID)
	}
	r.s.patients[p.ID] = *p
	return nil
}

func (r patientRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.s.patients, id)
	return nil
}

func (r patientRepo) Search(context.Context, patient.SearchParams, int, int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}

func (r patientRepo) MaxInternalSeq(_ context.Context, year int) (int, error) {
	highest := 0
	for _, p := range r.s.patients {
		if y, seq, ok := patient.ParseInternalID(p.InternalID); ok && y == year && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

// -- ledger --

type ledgerRepo struct{ s *memStore }

func (r ledgerRepo) Create(_ context.Context, e *ledger.Entry) error {
	for _, o := range r.s.entries {
		if o.IsOpen() && o.PatientID == e.PatientID && o.EquipmentID == e.EquipmentID && o.Role == e.Role {
			return apperr.Conflict("assignment_open_uniq")
		}
	}
	e.ID = uuid.New()
	r.s.entries = append(r.s.entries, *e)
	return nil
}

func (r ledgerRepo) FindOpen(_ context.Context, patientID, equipmentID uuid.UUID, role string) (*ledger.Entry, error) {
	for i := len(r.s.entries) - 1; i >= 0; i-- {
		e := r.s.entries[i]
		if e.IsOpen() && e.PatientID == patientID && e.EquipmentID == equipmentID && e.Role == role {
			return &e, nil
		}
	}
	return nil, apperr.NotFound("No open %s assignment.", role)
}

func (r ledgerRepo) Close(_ context.Context, id uuid.UUID, on time.Time) error {
	for i := range r.s.entries {
		if r.s.entries[i].ID == id && r.s.entries[i].IsOpen() {
			d := on
			r.s.entries[i].ReplacementDate = &d
			return nil
		}
	}
	return apperr.State("Assignment %s is already closed.", id)
}

func (r ledgerRepo) CountByEquipment(_ context.Context, equipmentID uuid.UUID) (int, error) {
	n := 0
	for _, e := range r.s.entries {
		if e.EquipmentID == equipmentID {
			n++
		}
	}
	return n, nil
}

func (r ledgerRepo) List(_ context.Context, f ledger.Filter, limit, offset int) ([]*ledger.Entry, int, error) {
	var out []*ledger.Entry
	for _, e := range r.s.entries {
		if f.EquipmentID != nil && e.EquipmentID != *f.EquipmentID {
			continue
		}
		if f.PatientID != nil && e.PatientID != *f.PatientID {
			continue
		}
		c := e
		out = append(out, &c)
	}
	return out, len(out), nil
}

// -- activity --

type noteRepo struct{ s *memStore }

func (r noteRepo) Create(_ context.Context, n *activity.Note) error {
	n.ID = uuid.New()
	r.s.notes = append(r.s.notes, *n)
	return nil
}

func (r noteRepo) ListByRecord(_ context.Context, recordType string, recordID uuid.UUID, limit, offset int) ([]*activity.Note, int, error) {
	var out []*activity.Note
	for _, n := range r.s.notes {
		if n.RecordType == recordType && n.RecordID == recordID {
			c := n
			out = append(out, &c)
		}
	}
	return out, len(out), nil
}

type reminderRepo struct{ s *memStore }

func (r reminderRepo) Create(_ context.Context, rem *activity.Reminder) error {
	rem.ID = uuid.New()
	r.s.reminders = append(r.s.reminders, *rem)
	return nil
}

func (r reminderRepo) GetByID(_ context.Context, id uuid.UUID) (*activity.Reminder, error) {
	for _, rem := range r.s.reminders {
		if rem.ID == id {
			c := rem
			return &c, nil
		}
	}
	return nil, apperr.NotFound("Reminder %s not found.", id)
}

func (r reminderRepo) HasOpen(_ context.Context, recordType string, recordID uuid.UUID, kind string) (bool, error) {
	for _, rem := range r.s.reminders {
		if rem.IsOpen() && rem.RecordType == recordType && rem.RecordID == recordID && rem.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

func (r reminderRepo) ResolveOpen(_ context.Context, recordType string, recordID uuid.UUID, at time.Time) ([]*activity.Reminder, error) {
	var out []*activity.Reminder
	for i := range r.s.reminders {
		rem := &r.s.reminders[i]
		if rem.IsOpen() && rem.RecordType == recordType && rem.RecordID == recordID {
			d := at
			rem.Status = activity.ReminderStatusDone
			rem.ResolvedAt = &d
			c := *rem
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r reminderRepo) MarkDone(_ context.Context, id uuid.UUID, at time.Time) error {
	for i := range r.s.reminders {
		if r.s.reminders[i].ID == id {
			d := at
			r.s.reminders[i].Status = activity.ReminderStatusDone
			r.s.reminders[i].ResolvedAt = &d
			return nil
		}
	}
	return apperr.NotFound("Reminder %s not found.", id)
}

func (r reminderRepo) List(context.Context, activity.ReminderFilter, int, int) ([]*activity.Reminder, int, error) {
	return nil, 0, nil
}

// -- inventory --

type locationRepo struct{ s *memStore }

func (r locationRepo) Create(_ context.Context, l *inventory.Location) error {
	l.ID = uuid.New()
	r.s.locations[l.ID] = *l
	return nil
}

func (r locationRepo) GetByID(_ context.Context, id uuid.UUID) (*inventory.Location, error) {
	l, ok := r.s.locations[id]
	if !ok {
		return nil, apperr.NotFound("Location %s not found.", id)
	}
	return &l, nil
}

func (r locationRepo) List(context.Context, string, int, int) ([]*inventory.Location, int, error) {
	return nil, 0, nil
}

type movementRepo struct{ s *memStore }

func (r movementRepo) Create(_ context.Context, m *inventory.Movement) error {
	if r.s.failMovements {
		return errors.New("stock movement table unavailable")
	}
	m.ID = uuid.New()
	r.s.movements = append(r.s.movements, *m)
	return nil
}

func (r movementRepo) ListByEquipment(context.Context, uuid.UUID, int, int) ([]*inventory.Movement, int, error) {
	return nil, 0, nil
}

// -- fixture --

var fixedToday = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memStore
	engine    *Engine
	equipment *equipment.Service
	patients  *patient.Service
	ledger    *ledger.Service
	activity  *activity.Service
	inventory *inventory.Service
	locker    *locker.Local
	metrics   *countingRecorder

	pumpProduct uuid.UUID
	rmaProduct  uuid.UUID
	returnLoc   uuid.UUID
	scrapLoc    uuid.UUID
}

func newFixture() *fixture {
	s := newMemStore()
	tx := snapshotTx{s: s}
	f := &fixture{store: s}

	f.equipment = equipment.NewService(productRepo{s}, unitRepo{s}, tx, 30)
	f.patients = patient.NewService(patientRepo{s}, tx, "MT")
	f.ledger = ledger.NewService(ledgerRepo{s})
	f.activity = activity.NewService(noteRepo{s}, reminderRepo{s}, nil, zerolog.Nop())
	f.inventory = inventory.NewService(locationRepo{s}, movementRepo{s}, f.equipment, tx)

	ctx := context.Background()
	kind := equipment.PumpKindGlucose
	pump := &equipment.Product{Name: "t:slim X2", IsPumpProduct: true, PumpKind: &kind}
	rma := &equipment.Product{Name: "t:slim X2 RMA", IsPumpProduct: true, IsRMAProduct: true, PumpKind: &kind}
	f.equipment.CreateProduct(ctx, pump)
	f.equipment.CreateProduct(ctx, rma)
	f.pumpProduct, f.rmaProduct = pump.ID, rma.ID

	ret := &inventory.Location{Name: "Returns"}
	scrap := &inventory.Location{Name: "Scrap", Usage: inventory.UsageScrap}
	f.inventory.CreateLocation(ctx, ret)
	f.inventory.CreateLocation(ctx, scrap)
	f.returnLoc, f.scrapLoc = ret.ID, scrap.ID

	cfg := config.DefaultPumps()
	cfg.ReturnLocationID = ret.ID.String()
	cfg.ScrapLocationID = scrap.ID.String()
	f.locker = locker.NewLocal()
	f.metrics = &countingRecorder{ops: make(map[string]int)}
	f.engine = NewEngine(Deps{
		Tx:        tx,
		Units:     f.equipment,
		Patients:  f.patients,
		Ledger:    f.ledger,
		Activity:  f.activity,
		Inventory: f.inventory,
		Locker:    f.locker,
		Metrics:   f.metrics,
	}, cfg, zerolog.Nop())
	f.engine.now = func() time.Time { return fixedToday }

	f.equipment.SetAssignmentRouter(f.engine)
	f.patients.SetDeviceLinker(f.engine)
	return f
}

func (f *fixture) unit(serial string, rma bool) *equipment.Unit {
	product := f.pumpProduct
	if rma {
		product = f.rmaProduct
	}
	u := &equipment.Unit{SerialNumber: serial, ProductID: product}
	if err := f.equipment.CreateUnit(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

func (f *fixture) patient(name string) *patient.Patient {
	p := &patient.Patient{Name: name}
	if err := f.patients.CreatePatient(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}

func (f *fixture) getUnit(id uuid.UUID) equipment.Unit { return f.store.units[id] }

func (f *fixture) getPatient(id uuid.UUID) patient.Patient { return f.store.patients[id] }

func (f *fixture) notesFor(recordType string, id uuid.UUID) []string {
	var out []string
	for _, n := range f.store.notes {
		if n.RecordType == recordType && n.RecordID == id {
			out = append(out, n.Body)
		}
	}
	return out
}

func (f *fixture) entriesFor(equipmentID uuid.UUID) (open, closed int) {
	for _, e := range f.store.entries {
		if e.EquipmentID != equipmentID {
			continue
		}
		if e.IsOpen() {
			open++
		} else {
			closed++
		}
	}
	return open, closed
}

type countingRecorder struct {
	ops       map[string]int
	failures  int
	reminders int
}

func (r *countingRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	r.ops[op]++
	if !success {
		r.failures++
	}
}

func (r *countingRecorder) RemindersCreated(n int) { r.reminders += n }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
