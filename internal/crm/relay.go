package crm

import (
	"context"
	"fmt"

	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/gmail"
	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
)

// URLResolver resolves a company name to its website. *lookup.Client satisfies it.
type URLResolver interface {
	CompanyURL(ctx context.Context, company string) (string, error)
}

// Sender sends one email. *gmail.Client satisfies it.
type Sender interface {
	SendEmail(ctx context.Context, msg *gmail.EmailMessage) (string, error)
}

// RelayUpserter reaches the CRM indirectly: it emails a list-intake address
// and a note-intake address and leaves the rest to the CRM's mail automation.
// It keeps no membership state, so every company gets a list-add email.
type RelayUpserter struct {
	resolver    URLResolver
	sender      Sender
	listAddress string
	noteAddress string
	reporter    Reporter
	options
}

// NewRelayUpserter creates a relay-mode upserter.
func NewRelayUpserter(resolver URLResolver, sender Sender, listAddress, noteAddress string, reporter Reporter, opts ...Option) (*RelayUpserter, error) {
	if listAddress == "" || noteAddress == "" {
		return nil, apperrors.Config("relay mode requires both list and note intake addresses")
	}
	return &RelayUpserter{
		resolver:    resolver,
		sender:      sender,
		listAddress: listAddress,
		noteAddress: noteAddress,
		reporter:    reporter,
		options:     newOptions(opts),
	}, nil
}

// Mode returns ModeRelay.
func (r *RelayUpserter) Mode() string {
	return ModeRelay
}

// Upsert resolves each company's URL and sends the list-add email, followed
// by the note email when the composite note is not blank.
func (r *RelayUpserter) Upsert(ctx context.Context, batch Batch) ([]Result, error) {
	results := make([]Result, 0, len(batch.Companies))
	for i, name := range batch.Companies {
		link, err := r.relayOne(ctx, name, batch.CompositeNoteFor(i))
		if err != nil {
			r.metrics.RecordCompanyUpsert(ctx, ModeRelay, instrumentation.StatusError)
			r.logger.Warn("company relay failed", logging.Company(name), logging.Err(err))
			r.reporter.Report(ctx, FailureSubject(name), FailureBody(err, name, batch.NoteFor(i), batch.Links))
			continue
		}

		r.metrics.RecordCompanyUpsert(ctx, ModeRelay, instrumentation.StatusSuccess)
		r.logger.Info("company relayed", logging.Company(name), "url", link)
		results = append(results, Result{Company: name, URL: link})
	}
	return results, nil
}

func (r *RelayUpserter) relayOne(ctx context.Context, name, note string) (string, error) {
	ctx, span := instrumentation.StartStageSpan(ctx, instrumentation.StageUpsert,
		instrumentation.NewSpanAttributeBuilder().WithCompany(name).WithMode(ModeRelay).Build()...)
	defer span.End()

	link, err := r.resolver.CompanyURL(ctx, name)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", err
	}

	if err := r.send(ctx, r.listAddress, name, link); err != nil {
		instrumentation.SetSpanError(span, err)
		return "", err
	}

	if note != "" {
		if err := r.send(ctx, r.noteAddress, link, note); err != nil {
			instrumentation.SetSpanError(span, err)
			return "", err
		}
	}

	instrumentation.SetSpanSuccess(span)
	return link, nil
}

func (r *RelayUpserter) send(ctx context.Context, to, subject, body string) error {
	_, err := r.sender.SendEmail(ctx, &gmail.EmailMessage{
		To:      []string{to},
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return apperrors.NotificationSend(fmt.Errorf("failed to email %s: %w", to, err), to)
	}
	return nil
}
