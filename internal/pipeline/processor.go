package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/google/uuid"

	"github.com/teemow/crmupdater/internal/apperrors"
	"github.com/teemow/crmupdater/internal/crm"
	"github.com/teemow/crmupdater/internal/drive"
	"github.com/teemow/crmupdater/internal/gmail"
	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/intent"
	"github.com/teemow/crmupdater/internal/logging"
	"github.com/teemow/crmupdater/internal/notify"
)

// Trigger sources.
const (
	SourcePubSub = "pubsub"
	SourceTool   = "mcp"
)

// Fetcher returns the latest mailbox message. *gmail.Client satisfies it.
type Fetcher interface {
	FetchLatest(ctx context.Context) (*gmail.InboundMessage, bool, error)
}

// Uploader stores one attachment and returns its link. *drive.Client satisfies it.
type Uploader interface {
	UploadAttachment(ctx context.Context, filename string, content []byte, mimeType string) (*drive.UploadedFile, error)
}

// Trigger describes what started a run.
type Trigger struct {
	// RequestID correlates logs, spans and errors. Generated when empty.
	RequestID string
	// HistoryID is the change indicator from the notification, if any.
	HistoryID string
	// Source is one of the Source* constants.
	Source string
}

// Outcome summarizes one run.
type Outcome struct {
	RequestID string `json:"request_id"`
	MessageID string `json:"message_id,omitempty"`
	// Result is one of the instrumentation.Notification* values.
	Result  string         `json:"result"`
	Intent  *intent.Intent `json:"intent,omitempty"`
	Links   []string       `json:"links,omitempty"`
	Results []crm.Result   `json:"results,omitempty"`
}

// Processor runs the update pipeline for one notification at a time per call.
// Calls may run concurrently.
type Processor struct {
	fetcher  Fetcher
	uploader Uploader
	upserter crm.Upserter
	reporter crm.Reporter
	tracker  *Tracker

	reportUnmatched bool
	metrics         *instrumentation.Metrics
	audit           *instrumentation.AuditLogger
	logger          logging.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithReportUnmatched controls whether messages without the trigger phrase
// are reported. The default is true.
func WithReportUnmatched(report bool) Option {
	return func(p *Processor) {
		p.reportUnmatched = report
	}
}

// WithTracker replaces the default message-id tracker.
func WithTracker(t *Tracker) Option {
	return func(p *Processor) {
		p.tracker = t
	}
}

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithAuditLogger writes one audit record per run.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(p *Processor) {
		p.audit = a
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l logging.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(fetcher Fetcher, uploader Uploader, upserter crm.Upserter, reporter crm.Reporter, opts ...Option) (*Processor, error) {
	if fetcher == nil || uploader == nil || upserter == nil || reporter == nil {
		return nil, fmt.Errorf("fetcher, uploader, upserter and reporter are required")
	}

	p := &Processor{
		fetcher:         fetcher,
		uploader:        uploader,
		upserter:        upserter,
		reporter:        reporter,
		reportUnmatched: true,
		logger:          logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.tracker == nil {
		t, err := NewTracker(DefaultTrackerSize)
		if err != nil {
			return nil, err
		}
		p.tracker = t
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	return p, nil
}

// Upserter returns the configured upserter.
func (p *Processor) Upserter() crm.Upserter {
	return p.upserter
}

// Run fetches the latest message and processes it. Only fetch failures are
// returned; everything after the fetch is reported to the operator and
// reflected in the Outcome.
func (p *Processor) Run(ctx context.Context, trig Trigger) (*Outcome, error) {
	if trig.RequestID == "" {
		trig.RequestID = uuid.NewString()
	}
	if trig.Source == "" {
		trig.Source = SourcePubSub
	}

	logger := p.logger.With(logging.KeyRequestID, trig.RequestID)
	inv := instrumentation.NewInvocation(instrumentation.InvocationNotification, trig.Source).
		WithRequest(trig.RequestID, "")
	out := &Outcome{RequestID: trig.RequestID}

	ctx, span := instrumentation.StartStageSpan(ctx, instrumentation.StageReceive,
		instrumentation.NewSpanAttributeBuilder().
			WithRequestID(trig.RequestID).
			WithMessage("", trig.HistoryID).
			Build()...)
	defer span.End()
	inv.WithSpanContext(ctx)

	msg, found, err := p.fetch(ctx)
	if err != nil {
		err = apperrors.WithRequestID(err, trig.RequestID)
		logger.Error("failed to fetch latest message", logging.HistoryID(trig.HistoryID), logging.Err(err))
		instrumentation.SetSpanError(span, err)
		p.finish(ctx, inv, out, instrumentation.NotificationFailed, "", err)
		return out, err
	}
	if !found {
		logger.Info("mailbox is empty, nothing to do", logging.HistoryID(trig.HistoryID))
		p.finish(ctx, inv, out, instrumentation.NotificationSkipped, "", nil)
		return out, nil
	}

	out.MessageID = msg.ID
	inv.WithRequest(trig.RequestID, msg.ID).WithSender(senderAddress(msg.From))
	logger = logger.With(logging.KeyMessageID, msg.ID, logging.SenderHash(senderAddress(msg.From)))

	if !p.tracker.Claim(msg.ID) {
		logger.Info("message already processed")
		p.finish(ctx, inv, out, instrumentation.NotificationDuplicate, msg.From, nil)
		return out, nil
	}

	if msg.Header(notify.ReportHeader) != "" {
		logger.Info("skipping our own error report")
		p.finish(ctx, inv, out, instrumentation.NotificationSelfReport, msg.From, nil)
		return out, nil
	}

	result := p.process(ctx, logger, msg, out)
	inv.WithUpsert(p.upserter.Mode(), companyCount(out), len(out.Results))
	p.finish(ctx, inv, out, result, msg.From, nil)
	return out, nil
}

// ProcessMessage runs the relay, parse and upsert stages on msg without
// fetching or deduplication.
func (p *Processor) ProcessMessage(ctx context.Context, msg *gmail.InboundMessage) *Outcome {
	out := &Outcome{RequestID: uuid.NewString(), MessageID: msg.ID}
	logger := p.logger.With(logging.KeyRequestID, out.RequestID)
	out.Result = p.process(ctx, logger, msg, out)
	return out
}

func (p *Processor) fetch(ctx context.Context) (*gmail.InboundMessage, bool, error) {
	ctx, span := instrumentation.StartStageSpan(ctx, instrumentation.StageFetch)
	defer span.End()

	msg, found, err := p.fetcher.FetchLatest(ctx)
	if err != nil {
		if !apperrors.IsKind(err, apperrors.CodeFetch) {
			err = apperrors.Fetch(err, "failed to fetch latest message")
		}
		instrumentation.SetSpanError(span, err)
		return nil, false, err
	}
	if found {
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithMessage(msg.ID, "").Build()...)
	}
	return msg, found, nil
}

// process relays attachments, parses the body and upserts the companies.
// It returns the notification result.
func (p *Processor) process(ctx context.Context, logger logging.Logger, msg *gmail.InboundMessage, out *Outcome) string {
	out.Links = p.relayAttachments(ctx, logger, msg)

	parsed, err := p.parse(ctx, msg.Body)
	if err != nil {
		logger := logger.With(logging.Stage(instrumentation.StageParse))
		if apperrors.IsKind(err, apperrors.CodeTriggerNotFound) {
			logger.Info("message has no trigger phrase")
			if p.reportUnmatched {
				p.reporter.Report(ctx, err.Error(), msg.Body)
			}
			return instrumentation.NotificationUnmatched
		}
		logger.Warn("failed to parse message", logging.Err(err))
		p.reporter.Report(ctx, err.Error(), msg.Body)
		return instrumentation.NotificationFailed
	}
	out.Intent = &parsed
	logger.Info("parsed message", "companies", len(parsed.Companies), "has_note", parsed.HasNote)

	var notes []string
	if parsed.HasNote {
		notes = []string{parsed.Note}
	}

	ctx, span := instrumentation.StartStageSpan(ctx, instrumentation.StageUpsert,
		instrumentation.NewSpanAttributeBuilder().WithMode(p.upserter.Mode()).Build()...)
	defer span.End()
	logger = logger.With(logging.Stage(instrumentation.StageUpsert))

	results, err := p.upserter.Upsert(ctx, crm.NewBatch(parsed.Companies, notes, out.Links))
	out.Results = results
	if err != nil {
		// the upserter has already reported the batch failure
		instrumentation.SetSpanError(span, err)
		logger.Error("upsert batch aborted", logging.Err(err))
		return instrumentation.NotificationFailed
	}
	instrumentation.SetSpanSuccess(span)
	logger.Info("upsert finished", "companies", len(parsed.Companies), "upserted", len(results))
	return instrumentation.NotificationProcessed
}

// relayAttachments uploads each attachment and returns the links of the
// ones that succeeded. Failures are reported one by one.
func (p *Processor) relayAttachments(ctx context.Context, logger logging.Logger, msg *gmail.InboundMessage) []string {
	if len(msg.Attachments) == 0 {
		return nil
	}

	ctx, span := instrumentation.StartStageSpan(ctx, instrumentation.StageRelay)
	defer span.End()
	logger = logger.With(logging.Stage(instrumentation.StageRelay))

	links := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		if att.Err != nil {
			p.metrics.RecordAttachmentUpload(ctx, instrumentation.StatusError)
			logger.Warn("attachment download failed", "filename", att.Filename, logging.Err(att.Err))
			p.reporter.Report(ctx, fmt.Sprintf("Drive upload failed for %s: %v", att.Filename, att.Err), msg.Body)
			continue
		}
		file, err := p.uploader.UploadAttachment(ctx, att.Filename, att.Content, att.MimeType)
		if err != nil {
			p.metrics.RecordAttachmentUpload(ctx, instrumentation.StatusError)
			logger.Warn("attachment upload failed", "filename", att.Filename, logging.Err(err))
			p.reporter.Report(ctx, fmt.Sprintf("Drive upload failed for %s: %v", att.Filename, err), msg.Body)
			continue
		}
		p.metrics.RecordAttachmentUpload(ctx, instrumentation.StatusSuccess)
		logger.Info("attachment uploaded", "filename", att.Filename, "link", file.Link)
		links = append(links, file.Link)
	}
	return links
}

func (p *Processor) parse(ctx context.Context, body string) (intent.Intent, error) {
	_, span := instrumentation.StartStageSpan(ctx, instrumentation.StageParse)
	defer span.End()

	parsed, err := intent.Parse(body)
	if err != nil {
		instrumentation.SetSpanError(span, err)
	}
	return parsed, err
}

func (p *Processor) finish(ctx context.Context, inv *instrumentation.Invocation, out *Outcome, result, sender string, err error) {
	out.Result = result
	if err == nil && result == instrumentation.NotificationFailed {
		err = errors.New("processing failed, see operator report")
	}
	p.metrics.RecordNotification(ctx, result, senderAddress(sender))
	p.audit.Log(inv.Complete(err))
}

func companyCount(out *Outcome) int {
	if out.Intent == nil {
		return 0
	}
	return len(out.Intent.Companies)
}

// senderAddress returns the bare address of a From header value.
func senderAddress(from string) string {
	if from == "" {
		return ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return from
	}
	return addr.Address
}
