package notify

import (
	"context"

	"github.com/teemow/crmupdater/internal/gmail"
	"github.com/teemow/crmupdater/internal/instrumentation"
	"github.com/teemow/crmupdater/internal/logging"
)

// ReportHeader marks outbound reports so the pipeline can skip them when they
// land in the watched inbox.
const ReportHeader = "X-CRMUpdater-Report"

// Sender sends one email. *gmail.Client satisfies it.
type Sender interface {
	SendEmail(ctx context.Context, msg *gmail.EmailMessage) (string, error)
}

// Reporter emails failures to the operator. It never fails its caller.
type Reporter struct {
	sender   Sender
	operator string
	metrics  *instrumentation.Metrics
	logger   logging.Logger
}

// NewReporter creates a reporter sending to operator through sender.
// A nil logger discards log output.
func NewReporter(sender Sender, operator string, metrics *instrumentation.Metrics, logger logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reporter{
		sender:   sender,
		operator: operator,
		metrics:  metrics,
		logger:   logger,
	}
}

// Report sends exactly one email to the operator. Send failures are logged
// and counted, then discarded.
func (r *Reporter) Report(ctx context.Context, subject, body string) {
	if r == nil {
		return
	}

	ctx, span := instrumentation.StartStageSpan(ctx, instrumentation.StageReport)
	defer span.End()

	if r.sender == nil || r.operator == "" {
		r.metrics.RecordErrorReport(ctx, instrumentation.StatusError)
		r.logger.Warn("error report dropped, no operator configured", "subject", subject)
		return
	}

	_, err := r.sender.SendEmail(ctx, &gmail.EmailMessage{
		To:      []string{r.operator},
		Subject: subject,
		Body:    body,
		Headers: map[string]string{ReportHeader: "1"},
	})
	if err != nil {
		instrumentation.SetSpanError(span, err)
		r.metrics.RecordErrorReport(ctx, instrumentation.StatusError)
		r.logger.Error("failed to send error report",
			"subject", subject,
			logging.SenderHash(r.operator),
			logging.Err(err))
		return
	}

	r.metrics.RecordErrorReport(ctx, instrumentation.StatusSuccess)
	r.logger.Info("error report sent", "subject", subject)
}
