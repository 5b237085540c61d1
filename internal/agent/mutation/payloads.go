package mutation

import (
	"time"

	"github.com/seamark/fieldops/internal/platform/errors"
)

// CrewAssignment assigns a crew to a job for one phase.
type CrewAssignment struct {
	JobID  string `json:"jobId"`
	CrewID string `json:"crewId"`
	Phase  string `json:"phase"`
}

func (p *CrewAssignment) Type() Type          { return TypeCrewAssignment }
func (p *CrewAssignment) CoalesceKey() string { return "crew_assignment:" + p.JobID + ":" + p.CrewID }
func (p *CrewAssignment) Route() Route        { return putRoute("/v1/jobs/" + p.JobID + "/crew-assignment") }

func (p *CrewAssignment) Validate() error {
	if p.JobID == "" {
		return errors.New(errors.CodeJobIDEmpty, "crew assignment requires a job id")
	}
	if p.CrewID == "" {
		return errors.New(errors.CodeCrewIDEmpty, "crew assignment requires a crew id")
	}
	if p.Phase == "" {
		return errors.New(errors.CodePhaseEmpty, "crew assignment requires a phase")
	}
	return nil
}

// Note is one job note in a full-set sync.
type Note struct {
	ID      string    `json:"id"`
	Body    string    `json:"body"`
	NotedAt time.Time `json:"notedAt"`
}

// JobNotes replaces the full note set for a job.
type JobNotes struct {
	JobID string `json:"jobId"`
	Notes []Note `json:"notes"`
}

func (p *JobNotes) Type() Type          { return TypeJobNotesSync }
func (p *JobNotes) CoalesceKey() string { return "job_notes:" + p.JobID }
func (p *JobNotes) Route() Route        { return putRoute("/v1/jobs/" + p.JobID + "/notes") }

func (p *JobNotes) Validate() error {
	if p.JobID == "" {
		return errors.New(errors.CodeJobIDEmpty, "job notes require a job id")
	}
	return nil
}

// MaterialFields are the writable fields of a material line item.
type MaterialFields struct {
	ID         string  `json:"id"`
	JobID      string  `json:"jobId"`
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	SupplierID string  `json:"supplierId,omitempty"`
}

func (f *MaterialFields) validate() error {
	if f.ID == "" {
		return errors.New(errors.CodeEntityIDEmpty, "material requires an id")
	}
	if f.Name == "" {
		return errors.New(errors.CodeEntityNameEmpty, "material requires a name")
	}
	return nil
}

// MaterialCreate writes a new material line item.
type MaterialCreate struct {
	MaterialFields
}

func (p *MaterialCreate) Type() Type          { return TypeMaterialCreate }
func (p *MaterialCreate) CoalesceKey() string { return "material:" + p.ID }
func (p *MaterialCreate) Route() Route        { return putRoute("/v1/materials/" + p.ID) }
func (p *MaterialCreate) Validate() error     { return p.validate() }

// MaterialUpdate rewrites an existing material line item. It shares the
// material coalescing key so an update supersedes a still-queued create.
type MaterialUpdate struct {
	MaterialFields
}

func (p *MaterialUpdate) Type() Type          { return TypeMaterialUpdate }
func (p *MaterialUpdate) CoalesceKey() string { return "material:" + p.ID }
func (p *MaterialUpdate) Route() Route        { return putRoute("/v1/materials/" + p.ID) }
func (p *MaterialUpdate) Validate() error     { return p.validate() }

// DirectoryEntity is the shared shape for directory upserts: suppliers,
// vendors, permit companies, and supervisors.
type DirectoryEntity struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactName  string `json:"contactName,omitempty"`
	ContactPhone string `json:"contactPhone,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
}

func (e *DirectoryEntity) validate() error {
	if e.ID == "" {
		return errors.New(errors.CodeEntityIDEmpty, "directory entity requires an id")
	}
	if e.Name == "" {
		return errors.New(errors.CodeEntityNameEmpty, "directory entity requires a name")
	}
	return nil
}

// SupplierUpsert writes one supplier directory entry.
type SupplierUpsert struct {
	DirectoryEntity
}

func (p *SupplierUpsert) Type() Type          { return TypeSupplierUpsert }
func (p *SupplierUpsert) CoalesceKey() string { return "supplier:" + p.ID }
func (p *SupplierUpsert) Route() Route        { return putRoute("/v1/suppliers/" + p.ID) }
func (p *SupplierUpsert) Validate() error     { return p.validate() }

// VendorUpsert writes one vendor directory entry.
type VendorUpsert struct {
	DirectoryEntity
}

func (p *VendorUpsert) Type() Type          { return TypeVendorUpsert }
func (p *VendorUpsert) CoalesceKey() string { return "vendor:" + p.ID }
func (p *VendorUpsert) Route() Route        { return putRoute("/v1/vendors/" + p.ID) }
func (p *VendorUpsert) Validate() error     { return p.validate() }

// PermitCompanyUpsert writes one permit company directory entry.
type PermitCompanyUpsert struct {
	DirectoryEntity
}

func (p *PermitCompanyUpsert) Type() Type          { return TypePermitCompanyUpsert }
func (p *PermitCompanyUpsert) CoalesceKey() string { return "permit_company:" + p.ID }
func (p *PermitCompanyUpsert) Route() Route        { return putRoute("/v1/permit-companies/" + p.ID) }
func (p *PermitCompanyUpsert) Validate() error     { return p.validate() }

// SupervisorUpsert writes one supervisor directory entry.
type SupervisorUpsert struct {
	DirectoryEntity
}

func (p *SupervisorUpsert) Type() Type          { return TypeSupervisorUpsert }
func (p *SupervisorUpsert) CoalesceKey() string { return "supervisor:" + p.ID }
func (p *SupervisorUpsert) Route() Route        { return putRoute("/v1/supervisors/" + p.ID) }
func (p *SupervisorUpsert) Validate() error     { return p.validate() }

// JobAssignmentFields set default assignments on a job.
type JobAssignmentFields struct {
	JobID string   `json:"jobId"`
	IDs   []string `json:"ids"`
}

func (f *JobAssignmentFields) validate() error {
	if f.JobID == "" {
		return errors.New(errors.CodeJobIDEmpty, "job assignment requires a job id")
	}
	return nil
}

// JobSupervisorsSet sets the default supervisors for a job.
type JobSupervisorsSet struct {
	JobAssignmentFields
}

func (p *JobSupervisorsSet) Type() Type          { return TypeJobSupervisorsSet }
func (p *JobSupervisorsSet) CoalesceKey() string { return "job_supervisors:" + p.JobID }
func (p *JobSupervisorsSet) Route() Route        { return putRoute("/v1/jobs/" + p.JobID + "/supervisors") }
func (p *JobSupervisorsSet) Validate() error     { return p.validate() }

// JobContractorSet sets the default contractor for a job.
type JobContractorSet struct {
	JobAssignmentFields
}

func (p *JobContractorSet) Type() Type          { return TypeJobContractorSet }
func (p *JobContractorSet) CoalesceKey() string { return "job_contractor:" + p.JobID }
func (p *JobContractorSet) Route() Route        { return putRoute("/v1/jobs/" + p.JobID + "/contractor") }
func (p *JobContractorSet) Validate() error     { return p.validate() }

// JobVendorSet sets the default vendor for a job.
type JobVendorSet struct {
	JobAssignmentFields
}

func (p *JobVendorSet) Type() Type          { return TypeJobVendorSet }
func (p *JobVendorSet) CoalesceKey() string { return "job_vendor:" + p.JobID }
func (p *JobVendorSet) Route() Route        { return putRoute("/v1/jobs/" + p.JobID + "/vendor") }
func (p *JobVendorSet) Validate() error     { return p.validate() }

// JobPermitCompanySet sets the default permit company for a job.
type JobPermitCompanySet struct {
	JobAssignmentFields
}

func (p *JobPermitCompanySet) Type() Type          { return TypeJobPermitCompanySet }
func (p *JobPermitCompanySet) CoalesceKey() string { return "job_permit_company:" + p.JobID }
func (p *JobPermitCompanySet) Route() Route {
	return putRoute("/v1/jobs/" + p.JobID + "/permit-company")
}
func (p *JobPermitCompanySet) Validate() error { return p.validate() }

// JobInspectionSet sets the default inspection assignment for a job.
type JobInspectionSet struct {
	JobAssignmentFields
}

func (p *JobInspectionSet) Type() Type          { return TypeJobInspectionSet }
func (p *JobInspectionSet) CoalesceKey() string { return "job_inspection:" + p.JobID }
func (p *JobInspectionSet) Route() Route        { return putRoute("/v1/jobs/" + p.JobID + "/inspection") }
func (p *JobInspectionSet) Validate() error     { return p.validate() }

// ScheduledTask creates one scheduled crew task.
type ScheduledTask struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	CrewID      string    `json:"crewId"`
	Phase       string    `json:"phase"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

func (p *ScheduledTask) Type() Type          { return TypeScheduledTaskCreate }
func (p *ScheduledTask) CoalesceKey() string { return "scheduled_task:" + p.ID }
func (p *ScheduledTask) Route() Route        { return putRoute("/v1/schedule/" + p.ID) }

func (p *ScheduledTask) Validate() error {
	if p.ID == "" {
		return errors.New(errors.CodeEntityIDEmpty, "scheduled task requires an id")
	}
	if p.JobID == "" {
		return errors.New(errors.CodeJobIDEmpty, "scheduled task requires a job id")
	}
	if p.CrewID == "" {
		return errors.New(errors.CodeCrewIDEmpty, "scheduled task requires a crew id")
	}
	if p.ScheduledAt.IsZero() {
		return errors.New(errors.CodeScheduleTimeMissing, "scheduled task requires a time")
	}
	return nil
}
