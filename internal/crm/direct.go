package crm

import (
	"context"
	"fmt"
	"strings"

	"github.com/teemow/crmupdater/internal/affinity"
	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
)

// ListFetchFailedSubject is the report subject when list membership cannot be read.
const ListFetchFailedSubject = "Affinity List Fetch Failed"

// AffinityAPI is the subset of the Affinity client used in direct mode.
type AffinityAPI interface {
	SearchCompany(ctx context.Context, name string) (*affinity.Company, bool, error)
	CreateCompany(ctx context.Context, name string) (*affinity.Company, error)
	ListMembers(ctx context.Context) (affinity.MemberSet, error)
	AddToList(ctx context.Context, companyID int64) error
	AddNote(ctx context.Context, companyID int64, content string) error
}

// DirectUpserter writes to Affinity through its API.
type DirectUpserter struct {
	api      AffinityAPI
	reporter Reporter
	options
}

// NewDirectUpserter creates a direct-mode upserter.
func NewDirectUpserter(api AffinityAPI, reporter Reporter, opts ...Option) *DirectUpserter {
	return &DirectUpserter{
		api:      api,
		reporter: reporter,
		options:  newOptions(opts),
	}
}

// Mode returns ModeDirect.
func (d *DirectUpserter) Mode() string {
	return ModeDirect
}

// Upsert reads list membership once, then finds or creates each company,
// adds it to the list when it is not yet a member and attaches the composite
// note. A membership failure is reported and aborts the batch.
func (d *DirectUpserter) Upsert(ctx context.Context, batch Batch) ([]Result, error) {
	members, err := d.api.ListMembers(ctx)
	if err != nil {
		if !apperrors.IsKind(err, apperrors.CodeCrmOperation) {
			err = apperrors.CrmOperation(err, instrumentation.OperationListMembers)
		}
		d.logger.Error("failed to fetch list membership", logging.Err(err))
		d.reporter.Report(ctx, ListFetchFailedSubject, err.Error())
		return nil, err
	}
	if members == nil {
		members = affinity.MemberSet{}
	}

	results := make([]Result, 0, len(batch.Companies))
	for i, name := range batch.Companies {
		note := batch.CompositeNoteFor(i)

		id, err := d.upsertOne(ctx, name, note, members)
		if err != nil {
			d.metrics.RecordCompanyUpsert(ctx, ModeDirect, instrumentation.StatusError)
			d.logger.Warn("company upsert failed", logging.Company(name), logging.Err(err))
			d.reporter.Report(ctx, FailureSubject(name), FailureBody(err, name, batch.NoteFor(i), batch.Links))
			continue
		}

		d.metrics.RecordCompanyUpsert(ctx, ModeDirect, instrumentation.StatusSuccess)
		d.logger.Info("company upserted", logging.Company(name), "company_id", id)
		results = append(results, Result{Company: name, CompanyID: id})
	}
	return results, nil
}

func (d *DirectUpserter) upsertOne(ctx context.Context, name, note string, members affinity.MemberSet) (int64, error) {
	ctx, span := instrumentation.StartStageSpan(ctx, instrumentation.StageUpsert,
		instrumentation.NewSpanAttributeBuilder().WithCompany(name).WithMode(ModeDirect).Build()...)
	defer span.End()

	company, found, err := d.api.SearchCompany(ctx, name)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return 0, err
	}
	if !found {
		company, err = d.api.CreateCompany(ctx, name)
		if err != nil {
			instrumentation.SetSpanError(span, err)
			return 0, err
		}
		instrumentation.AddSpanEvent(span, "company_created")
	}
	if company == nil || company.ID == 0 {
		err := apperrors.CrmOperation(fmt.Errorf("no company id returned for %q", name), instrumentation.OperationCreate)
		instrumentation.SetSpanError(span, err)
		return 0, err
	}

	if !members.Has(company.ID) {
		if err := d.api.AddToList(ctx, company.ID); err != nil {
			instrumentation.SetSpanError(span, err)
			return 0, err
		}
		members.Add(company.ID)
	}

	if strings.TrimSpace(note) != "" {
		if err := d.api.AddNote(ctx, company.ID, note); err != nil {
			instrumentation.SetSpanError(span, err)
			return 0, err
		}
	}

	instrumentation.SetSpanSuccess(span)
	return company.ID, nil
}
