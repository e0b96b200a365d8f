package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/formularium/formularium-backend/internal/domain"
)

// SubmissionService はフォーム送信の署名と保存を行う。
type SubmissionService struct {
	forms       FormRepository
	keys        EncryptionKeyRepository
	submissions SubmissionRepository
	memberships MembershipRepository
	signing     *SignatureKeyService
	unlocker    SigningKeyUnlocker
	metrics     Metrics
	now         func() time.Time
}

// NewSubmissionService は新しいSubmissionServiceを生成する。
func NewSubmissionService(
	forms FormRepository,
	keys EncryptionKeyRepository,
	submissions SubmissionRepository,
	memberships MembershipRepository,
	signing *SignatureKeyService,
	unlocker SigningKeyUnlocker,
	metrics Metrics,
) *SubmissionService {
	return &SubmissionService{
		forms:       forms,
		keys:        keys,
		submissions: submissions,
		memberships: memberships,
		signing:     signing,
		unlocker:    unlocker,
		metrics:     metricsOrNop(metrics),
		now:         time.Now,
	}
}

// RetrieveForm は送信を受け付けるフォームを取得する。
// 存在しない場合と無効な場合を区別せず ErrFormUnavailable を返す。
func (s *SubmissionService) RetrieveForm(ctx context.Context, formID string) (*domain.Form, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("finding form: %w", err)
	}
	if form == nil || !form.Active {
		return nil, domain.ErrFormUnavailable
	}
	return form, nil
}

// RetrieveRecipientKeys はフォームのチームに所属するユーザーの有効な暗号鍵を返す。
func (s *SubmissionService) RetrieveRecipientKeys(ctx context.Context, formID string) ([]*domain.EncryptionKey, error) {
	form, err := s.RetrieveForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	return s.recipientKeys(ctx, form)
}

func (s *SubmissionService) recipientKeys(ctx context.Context, form *domain.Form) ([]*domain.EncryptionKey, error) {
	keys, err := s.keys.FindActiveByTeamIDs(ctx, form.TeamIDs)
	if err != nil {
		return nil, fmt.Errorf("finding recipient keys: %w", err)
	}
	return keys, nil
}

// Submit は暗号化済みの送信内容に署名し、保存する。
// 同じ内容でも呼び出しごとに新しい送信として記録する。
func (s *SubmissionService) Submit(ctx context.Context, formID, encryptedContent string) (*domain.SignedSubmission, error) {
	ctx, span := tracer.Start(ctx, "SubmissionService.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("form.id", formID))

	start := time.Now()
	signed, err := s.submit(ctx, formID, encryptedContent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.SubmissionRejected(rejectReason(err))
		slog.WarnContext(ctx, "submission rejected",
			"operation", "submit_form",
			"form_id", formID,
			"error", err,
		)
		return nil, err
	}

	s.metrics.SubmissionSigned(time.Since(start))
	slog.InfoContext(ctx, "submission signed",
		"operation", "submit_form",
		"form_id", formID,
		"submission_id", signed.SubmissionID,
	)
	return signed, nil
}

func (s *SubmissionService) submit(ctx context.Context, formID, encryptedContent string) (*domain.SignedSubmission, error) {
	if encryptedContent == "" {
		return nil, domain.ErrEmptyContent
	}

	form, err := s.RetrieveForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	// 送信中にローテーションされても、ここで読んだ鍵だけを使う
	signingKey, err := s.signing.GetActiveSigningKey(ctx)
	if err != nil {
		return nil, err
	}
	signer, err := s.unlocker.Unlock(ctx, signingKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyUnlockFailed, err)
	}

	recipients, err := s.recipientKeys(ctx, form)
	if err != nil {
		return nil, err
	}
	recipientKeys := make([]string, len(recipients))
	for i, k := range recipients {
		recipientKeys[i] = k.PublicKey
	}

	submittedAt := s.now().UTC()
	envelope := &domain.Envelope{
		FormData:             encryptedContent,
		Timestamp:            domain.EnvelopeTimestamp(submittedAt),
		PublicKeyServer:      signingKey.PublicKey,
		PublicKeysRecipients: recipientKeys,
		FormID:               form.ID,
		FormName:             form.Name,
	}
	canonical, err := envelope.Canonical()
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	signature, err := signer.SignDetached(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCryptoUnavailable, err)
	}

	// 署名後にタイムアウトした場合は保存しない
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	submission := &domain.FormSubmission{
		FormID:         form.ID,
		EncryptedData:  encryptedContent,
		Envelope:       string(canonical),
		Signature:      signature,
		SignatureKeyID: signingKey.ID,
		SubmittedAt:    submittedAt,
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, fmt.Errorf("saving submission: %w", err)
	}

	return &domain.SignedSubmission{
		SubmissionID: submission.ID,
		Envelope:     submission.Envelope,
		Signature:    signature,
	}, nil
}

// ListSubmissions はフォームの送信データを返す。
// 権限に加えて、フォームのいずれかのチームに所属している必要がある。
func (s *SubmissionService) ListSubmissions(ctx context.Context, actor domain.Principal, formID string) ([]*domain.FormSubmission, error) {
	if err := actor.Require(domain.CapRetrieveFormSubmissions); err != nil {
		return nil, err
	}

	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("finding form: %w", err)
	}
	if form == nil {
		return nil, domain.ErrFormUnavailable
	}

	memberships, err := s.memberships.FindByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("finding memberships: %w", err)
	}
	if !sharesTeam(form.TeamIDs, memberships) {
		return nil, fmt.Errorf("%w: not a member of any recipient team", domain.ErrForbidden)
	}

	submissions, err := s.submissions.FindByFormID(ctx, form.ID)
	if err != nil {
		return nil, fmt.Errorf("finding submissions: %w", err)
	}
	return submissions, nil
}

func sharesTeam(teamIDs []string, memberships []*domain.TeamMembership) bool {
	for _, m := range memberships {
		for _, id := range teamIDs {
			if m.TeamID == id {
				return true
			}
		}
	}
	return false
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "form_unavailable"
	case errors.Is(err, domain.ErrCryptoUnavailable):
		return "crypto_unavailable"
	case errors.Is(err, domain.ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal"
	}
}
